package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/openapigw/internal/config"
	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// run starts the listeners and blocks until ctx is canceled, then shuts
// everything down.
func run(ctx context.Context, app *application, configPath string) error {
	if err := app.gateway.Start(ctx); err != nil {
		return errors.Join(err, app.close(context.WithoutCancel(ctx)))
	}

	watcher := startConfigWatcher(ctx, app, configPath)

	<-ctx.Done()
	app.logger.Info("received shutdown signal")
	return shutdown(app, watcher)
}

// shutdown stops the watcher and drains the listeners in parallel. Pending
// counter updates are flushed only after the listeners stopped accepting work.
func shutdown(app *application, watcher *config.Watcher) error {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	var g errgroup.Group
	if watcher != nil {
		g.Go(watcher.Stop)
	}
	g.Go(func() error {
		return app.gateway.Stop(ctx)
	})
	stopErr := g.Wait()
	if stopErr != nil {
		app.logger.Error("failed to stop gateway gracefully", observability.Error(stopErr))
	}

	closeErr := app.close(ctx)
	if closeErr != nil {
		app.logger.Error("failed to release resources", observability.Error(closeErr))
	}

	app.logger.Info("gateway stopped")
	return errors.Join(stopErr, closeErr)
}
