package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llmvisor/internal/common/fsutil"
)

// Load reads a configuration file into out based on its extension.
// Supports: .yaml/.yml, .json, .toml. Every failure is returned as a *ConfigError.
func Load(path string, out any) error {
	if path == "" {
		return &ConfigError{Err: fmt.Errorf("empty config path")}
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return &ConfigError{Path: p, Err: err}
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, out)
	case ".json":
		err = json.Unmarshal(b, out)
	case ".toml":
		err = toml.Unmarshal(b, out)
	default:
		err = fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return &ConfigError{Path: p, Err: err}
	}
	return nil
}

// LoadModels reads the model registry file.
func LoadModels(path string) (ModelsFile, error) {
	var mf ModelsFile
	if err := Load(path, &mf); err != nil {
		return ModelsFile{}, err
	}
	return mf, nil
}

// LoadServices reads the service graph file.
func LoadServices(path string) (ServicesFile, error) {
	var sf ServicesFile
	if err := Load(path, &sf); err != nil {
		return ServicesFile{}, err
	}
	return sf, nil
}

// LoadSettings reads the optional supervisor settings file. A missing file
// yields defaults; a malformed one is an error.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	if path != "" {
		p, err := fsutil.ExpandHome(path)
		if err != nil {
			return s, &ConfigError{Path: path, Err: err}
		}
		if fsutil.PathExists(p) {
			if err := Load(p, &s); err != nil {
				return s, err
			}
		}
	}
	return s.WithDefaults(), nil
}

// FindFile returns the first existing <dir>/<base>.{yaml,yml,json,toml}, or the
// .yaml candidate when none exists so errors name a sensible path.
func FindFile(dir, base string) string {
	if d, err := fsutil.ExpandHome(dir); err == nil {
		dir = d
	}
	for _, ext := range []string{".yaml", ".yml", ".json", ".toml"} {
		p := filepath.Join(dir, base+ext)
		if fsutil.PathExists(p) {
			return p
		}
	}
	return filepath.Join(dir, base+".yaml")
}
