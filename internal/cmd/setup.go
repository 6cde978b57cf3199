package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/voxop/voxop/internal/automation"
	"github.com/voxop/voxop/internal/config"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
	"github.com/voxop/voxop/internal/policy"
	"github.com/voxop/voxop/internal/provider"
	"github.com/voxop/voxop/internal/session"
)

// defaultConfigPath returns the per-user config location.
func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "voxop", "voxop.yaml")
	}
	return "voxop.yaml"
}

// loadConfig layers the config file, VOXOP_* environment overrides, and
// the persistent flags. An explicitly passed --config must exist; the
// default location may be missing.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadOrDefault(defaultConfigPath())
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger from the resolved config.
func newLogger(cfg *config.Config) *log.Logger {
	return log.New(log.Config{
		Level:       log.ParseLevel(cfg.Log.Level),
		Format:      log.ParseFormat(cfg.Log.Format),
		Output:      log.OutputStderr(),
		ServiceName: "voxop",
	})
}

// loadGate compiles the configured policy file, falling back to the
// built-in conservative policy when none is configured.
func loadGate(cfg *config.Config) (*policy.Gate, error) {
	pol := policy.DefaultPolicy()
	if cfg.PolicyPath != "" {
		loaded, err := policy.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		pol = loaded
	}
	return policy.NewGate(pol)
}

// buildCore assembles the real collaborators and opens a session.
func buildCore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*session.Core, error) {
	gate, err := loadGate(cfg)
	if err != nil {
		return nil, err
	}
	store, err := library.Open(cfg.Library.Path, logger)
	if err != nil {
		return nil, err
	}
	registry, err := provider.NewRegistry(cfg.Providers, logger)
	if err != nil {
		return nil, err
	}

	input := automation.NewXdotoolInput(logger)
	deps := session.Deps{
		Shell:    automation.NewLocalShell(cfg.Shell, logger),
		Input:    input,
		Screen:   automation.NewLocalScreen(cfg.GUI.CaptureCommand, logger),
		Language: registry.Language(),
		Vision:   registry.Vision(),
		Library:  store,
		Gate:     gate,
		Logger:   logger,
		ScreenContext: func(ctx context.Context) string {
			title, err := input.ActiveWindow(ctx)
			if err != nil {
				return ""
			}
			return title
		},
	}
	return session.New(ctx, cfg, deps)
}
