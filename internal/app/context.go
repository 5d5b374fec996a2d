package app

import (
	"context"
	"errors"
	"fmt"

	"ideaforge/internal/config"
	"ideaforge/internal/repo"
)

// ResolveConfig returns the active engine configuration, preferring the
// settings row, then an ideaforge.yml in the workspace, then built-in
// defaults. Whatever wins is written back to the settings row so every
// process sweeping the same database applies the same rule table.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetSettings(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := r.UpsertSettings(ctx, cfg); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return cfg, nil
}

// ImportConfig replaces the stored settings from a YAML file.
func ImportConfig(ctx context.Context, path string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	if err := r.UpsertSettings(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
