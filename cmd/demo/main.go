// Demo runs a scripted emergency triage session against the in-memory store
// and prints the resulting analysis report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/beacon/internal/report"
	"github.com/linnemanlabs/beacon/internal/triage"
	"github.com/linnemanlabs/beacon/internal/triage/memstore"
)

const appName = "beacon-demo"

func main() {
	var logCfg log.Config
	logCfg.RegisterFlags(flag.CommandLine)
	highCap := flag.Int("high-severity-cap", triage.DefaultHighSeverityCap, "maximum number of stored high severity alerts")
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "BEACON_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := logCfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "configuration validation failed:", err)
		os.Exit(1)
	}
	lg, err := log.New(logCfg.ToOptions(appName))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx := log.WithContext(context.Background(), lg)
	if err := run(ctx, os.Stdout, lg, *highCap); err != nil {
		lg.Error(ctx, err, "demo failed")
		os.Exit(1)
	}
}

// run raises a fire, a medical and a security alert, dispatches the fire,
// resolves the security alert, then prints the active queue and the report.
func run(ctx context.Context, out io.Writer, L log.Logger, highCap int) error {
	engine := triage.NewEngine(memstore.New(), L, triage.Options{HighSeverityCap: highCap})
	defer func() { _ = engine.Close(ctx) }()

	fire, err := engine.Raise(ctx, triage.KindFire, "123 Industrial Zone", triage.SeverityHigh)
	if err != nil {
		return fmt.Errorf("raise fire: %w", err)
	}
	medical, err := engine.Raise(ctx, triage.KindMedical, "Central Park", triage.SeverityMedium)
	if err != nil {
		return fmt.Errorf("raise medical: %w", err)
	}
	security, err := engine.Raise(ctx, triage.KindSecurity, "Downtown Mall", triage.SeverityLow)
	if err != nil {
		return fmt.Errorf("raise security: %w", err)
	}
	fmt.Fprintf(out, "raised %s, %s, %s\n", fire.ID, medical.ID, security.ID)

	if next, ok, err := engine.NextEmergency(ctx); err != nil {
		return err
	} else if ok {
		fmt.Fprintf(out, "next emergency: %s (%s at %s)\n", next.ID, next.Severity, next.Location)
	}

	if err := engine.Dispatch(ctx, fire.ID); err != nil {
		return fmt.Errorf("dispatch %s: %w", fire.ID, err)
	}
	if err := engine.Resolve(ctx, security.ID); err != nil {
		return fmt.Errorf("resolve %s: %w", security.ID, err)
	}

	// a resolved alert cannot be dispatched again
	if err := engine.Dispatch(ctx, security.ID); !errors.Is(err, triage.ErrAlreadyResolved) {
		return fmt.Errorf("dispatch resolved %s: got %v, want %w", security.ID, err, triage.ErrAlreadyResolved)
	}

	active, err := engine.ActiveEmergencies(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "active emergencies:")
	for _, a := range active {
		fmt.Fprintf(out, "  %-5s %-8s %-6s %-10s %s\n", a.ID, a.Kind, a.Severity, a.Status, a.Location)
	}

	text, err := report.New(engine).Text(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)
	return nil
}
