package main

import (
	"context"
	"errors"
	"fmt"

	"ensemble/internal/catalog"
	"ensemble/internal/config"
	appLog "ensemble/internal/log"
	"ensemble/internal/site"
)

// pipeline refreshes the catalog and writes the static site.
type pipeline struct {
	cat       *catalog.Catalog
	renderer  *site.Renderer
	outputDir string
}

// refresh reloads every page. Refresh always publishes a snapshot, so an
// error here only means some sources failed.
func (p *pipeline) refresh(ctx context.Context) error {
	_, err := p.cat.Refresh(ctx)
	return err
}

// build writes the static site when an output directory is configured.
func (p *pipeline) build(context.Context) error {
	if p.outputDir == "" {
		return nil
	}
	return p.renderer.Build(p.cat, p.outputDir, p.cat.Now())
}

// run refreshes then builds. The build runs after a partial refresh too; the
// returned error joins both steps.
func (p *pipeline) run(ctx context.Context) error {
	refreshErr := p.refresh(ctx)
	if refreshErr != nil {
		appLog.Warn("refresh finished with errors, building anyway", "err", refreshErr.Error())
	}
	if ctx.Err() != nil {
		return errors.Join(refreshErr, ctx.Err())
	}
	return errors.Join(refreshErr, p.build(ctx))
}

// runOnce is the -once mode. Source failures are logged and tolerated; only a
// failed build is fatal.
func runOnce(ctx context.Context, p *pipeline) error {
	if err := p.refresh(ctx); err != nil {
		appLog.Warn("refresh finished with errors", "err", err.Error())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.build(ctx); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	appLog.Info("single run complete", "output_dir", p.outputDir)
	return nil
}

// checkPreview reports a preview configured for a page that does not exist.
func checkPreview(conf *config.Config) error {
	if !conf.Preview.Enabled {
		return nil
	}
	if _, ok := conf.Page(conf.Preview.Page); !ok {
		return fmt.Errorf("preview page %q is not a configured page", conf.Preview.Page)
	}
	return nil
}
