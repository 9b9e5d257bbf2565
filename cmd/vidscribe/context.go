package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vidscribe/internal/config"
	"vidscribe/internal/jobs"
	"vidscribe/internal/logging"
	"vidscribe/internal/models"
	"vidscribe/internal/retrieval"
	"vidscribe/internal/store"
	"vidscribe/internal/worker"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// newLogger writes to the log file, and to stderr when verbose or forced.
// Interactive commands keep stderr for progress rendering.
func (c *commandContext) newLogger(cfg *config.Config, stderr bool) (*slog.Logger, error) {
	if c.verbose != nil && *c.verbose {
		stderr = true
	}
	var paths []string
	if cfg.Paths.LogDir != "" {
		paths = append(paths, filepath.Join(cfg.Paths.LogDir, "vidscribe.log"))
	}
	if stderr || len(paths) == 0 {
		paths = append(paths, "stderr")
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: paths,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// runtime bundles the long-lived services one command needs.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	launcher *worker.Launcher
}

type runtimeOptions struct {
	store  bool
	stderr bool
}

func (c *commandContext) openRuntime(opts runtimeOptions) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger(cfg, opts.stderr)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		launcher: worker.NewLauncher(worker.ConfigResolver(cfg), logger),
	}
	if opts.store {
		st, err := store.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		rt.store = st
	}
	return rt, nil
}

func (r *runtime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *runtime) orchestrator(bus *jobs.Bus) *jobs.Orchestrator {
	return jobs.New(r.cfg, r.launcher, r.store, bus, r.logger)
}

func (r *runtime) engine() (*retrieval.Engine, error) {
	// A nil *store.Store must not reach the embedding.Cache interface.
	if r.store == nil {
		return retrieval.NewFromConfig(r.cfg, nil, r.launcher, r.logger)
	}
	return retrieval.NewFromConfig(r.cfg, r.store, r.launcher, r.logger)
}

func (r *runtime) models() *models.Manager {
	return models.NewManager(r.launcher, r.cfg.Transcription.ModelCacheDir, r.logger)
}

// outputFolder picks the flag value, falling back to paths.output_dir.
func outputFolder(cfg *config.Config, flagValue string) (string, error) {
	folder := strings.TrimSpace(flagValue)
	if folder == "" {
		folder = cfg.Paths.OutputDir
	}
	if folder == "" {
		return "", errors.New("an output folder is required: pass --output or set paths.output_dir")
	}
	return config.ExpandPath(folder)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
