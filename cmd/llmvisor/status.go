package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/app"
	"llmvisor/internal/config"
	"llmvisor/pkg/types"
)

const statusTimeout = 30 * time.Second

func runStatus(parent context.Context, out io.Writer, opts *cliOptions, st config.Settings, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, statusTimeout)
	defer cancel()

	sup, err := app.New(app.Options{ConfigDir: opts.configDir, Settings: &st, Logger: log})
	if err != nil {
		return err
	}
	defer sup.Close(ctx)
	if err := sup.Scheduler.Reconcile(ctx); err != nil {
		log.Debug().Err(err).Msg("backend not reachable")
	}
	snap := sup.Status(ctx)
	gpu := sup.GPU(ctx)
	if err := renderStatus(out, snap, gpu); err != nil {
		return err
	}
	if len(snap.CriticalUnhealthy) > 0 {
		return errCriticalUnhealthy
	}
	return nil
}

// renderStatus prints the services table followed by the VRAM summary.
func renderStatus(out io.Writer, snap types.StatusResponse, gpu types.GPUStats) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tKIND\tPORT\tCRITICAL\tSTATUS\tLATENCY\tDETAIL")
	for _, s := range snap.Services {
		port := "-"
		if s.Port > 0 {
			port = fmt.Sprint(s.Port)
		}
		crit := ""
		if s.Critical {
			crit = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0fms\t%s\n", s.ID, s.Kind, port, crit, s.Status, s.LatencyMS, s.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sc := snap.Scheduler
	fmt.Fprintf(out, "\nVRAM  %.1f / %.1f GB tracked (%.1f reserved, %.1f available)  source=%s\n",
		sc.UsedGB, sc.TotalGB, sc.ReservedGB, sc.AvailableGB, gpu.Source)
	if len(sc.Loaded) > 0 {
		names := make([]string, 0, len(sc.Loaded))
		for _, m := range sc.Loaded {
			names = append(names, fmt.Sprintf("%s (%.1fGB)", m.Model, m.VRAMGB))
		}
		fmt.Fprintf(out, "Loaded  %s\n", strings.Join(names, ", "))
	}
	if len(snap.CriticalUnhealthy) > 0 {
		fmt.Fprintf(out, "\nCRITICAL UNHEALTHY: %s\n", strings.Join(snap.CriticalUnhealthy, ", "))
	}
	return nil
}
