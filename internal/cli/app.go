package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/jobs"
	"github.com/alexanderjulianmartinez/autodq/internal/rules"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/internal/tracker"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"

	// warehouse backends
	_ "github.com/alexanderjulianmartinez/autodq/internal/source/databricks"
	_ "github.com/alexanderjulianmartinez/autodq/internal/source/duckdb"
	_ "github.com/alexanderjulianmartinez/autodq/internal/source/mysql"
)

const jobsTimeout = 30 * time.Second

// app is the per-command wiring of config, logger and warehouse.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	out    io.Writer
	wh     source.Warehouse
	reader *source.Reader
}

func newApp(cmd *cobra.Command) *app {
	return &app{
		cfg: getConfig(cmd.Context()),
		log: getLogger(cmd.Context()),
		out: cmd.OutOrStdout(),
	}
}

// connect opens the configured warehouse.
func (a *app) connect(ctx context.Context) error {
	wh, err := source.Open(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	reader, err := source.NewReader(wh, a.cfg.Schema, a.log)
	if err != nil {
		_ = wh.Close()
		return err
	}
	a.wh, a.reader = wh, reader
	return nil
}

func (a *app) close() {
	if a.wh != nil {
		_ = a.wh.Close()
	}
}

func (a *app) write(t export.Table) error {
	return export.Write(a.out, a.cfg.Output, t)
}

// results loads the combined validation results.
func (a *app) results(ctx context.Context) ([]types.ValidationResult, error) {
	f, err := a.reader.LoadCombined(ctx)
	if err != nil {
		return nil, err
	}
	return types.FromFrame(f)
}

func (a *app) catalog() (config.RuleCatalog, error) {
	return config.LoadRules(a.cfg.RulesFile)
}

func (a *app) tracker(ctx context.Context) (*tracker.Store, error) {
	path := a.cfg.Tracker.Path
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create tracker directory: %w", err)
		}
	}
	return tracker.Open(ctx, path, a.log.With().Str("component", "tracker").Logger())
}

// rulesManager returns nil when no Databricks job is configured.
func (a *app) rulesManager(ctx context.Context) (*rules.Manager, error) {
	db := a.cfg.Databricks
	if db.JobID == 0 || db.Host == "" || db.Token == "" {
		return nil, nil
	}
	client, err := jobs.New(db.BaseURL(), db.Token, jobsTimeout)
	if err != nil {
		return nil, err
	}

	var opts []rules.Option
	if a.cfg.Assistant.Project != "" {
		interp, err := rules.NewGemini(ctx, a.cfg.Assistant)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rules.WithInterpreter(interp))
	}
	return rules.NewManager(client, db.JobID, a.reader, a.log.With().Str("component", "rules").Logger(), opts...), nil
}
