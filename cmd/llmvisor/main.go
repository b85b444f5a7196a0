package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		if !errors.Is(err, errCriticalUnhealthy) {
			fmt.Fprintln(os.Stderr, "llmvisor:", err)
		}
		os.Exit(1)
	}
}
