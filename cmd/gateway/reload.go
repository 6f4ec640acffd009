package main

import (
	"context"
	"slices"

	"github.com/vyrodovalexey/openapigw/internal/config"
	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// startConfigWatcher watches configPath for changes. A watcher that cannot
// start is logged and skipped; the gateway keeps its startup configuration.
func startConfigWatcher(ctx context.Context, app *application, configPath string) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, app.applyReload, config.WithLogger(app.logger))
	if err != nil {
		app.logger.Warn("config hot-reload disabled", observability.Error(err))
		return nil
	}
	if err := watcher.Start(ctx); err != nil {
		app.logger.Warn("config hot-reload disabled", observability.Error(err))
		return nil
	}
	return watcher
}

// applyReload applies the settings that can change at runtime: the origin
// allow-list and the static caller table. Everything else needs a restart.
func (a *application) applyReload(cfg *config.GatewayConfig) {
	if err := a.filter.UpdateAllowedOrigins(cfg.Filter.AllowedOrigins); err != nil {
		a.logger.Error("failed to apply allowed origins", observability.Error(err))
	} else {
		a.logger.Info("allowed origins updated", observability.Strings("origins", cfg.Filter.AllowedOrigins))
	}

	if a.static != nil && cfg.Directory.Type == config.DirectoryStatic {
		if err := a.static.Replace(callerEntries(cfg.Directory.Callers)); err != nil {
			a.logger.Error("failed to apply caller directory", observability.Error(err))
		} else {
			a.logger.Info("caller directory updated", observability.Int("callers", len(cfg.Directory.Callers)))
		}
	}

	if changed := restartRequired(a.config, cfg); len(changed) > 0 {
		a.logger.Warn("configuration changes require a restart", observability.Strings("sections", changed))
	}
}

func restartRequired(old, next *config.GatewayConfig) []string {
	var changed []string
	if old.Server != next.Server {
		changed = append(changed, "server")
	}
	if old.Admin != next.Admin {
		changed = append(changed, "admin")
	}
	if old.Forward != next.Forward {
		changed = append(changed, "forward")
	}
	if filterPolicyChanged(old.Filter, next.Filter) {
		changed = append(changed, "filter")
	}
	if old.Replay != next.Replay {
		changed = append(changed, "replay")
	}
	if old.Metering != next.Metering {
		changed = append(changed, "metering")
	}
	if old.Directory.Type != next.Directory.Type || old.Directory.Vault != next.Directory.Vault {
		changed = append(changed, "directory")
	}
	if old.Registry.Type != next.Registry.Type || !slices.Equal(old.Registry.Interfaces, next.Registry.Interfaces) {
		changed = append(changed, "registry")
	}
	if old.Counter != next.Counter {
		changed = append(changed, "counter")
	}
	if old.Database != next.Database || old.Redis != next.Redis {
		changed = append(changed, "storage")
	}
	if old.Observability != next.Observability {
		changed = append(changed, "observability")
	}
	return changed
}

// filterPolicyChanged compares every filter setting except the allow-list,
// which is applied live.
func filterPolicyChanged(old, next config.FilterConfig) bool {
	return old.ReplayWindow != next.ReplayWindow ||
		old.NonceCeiling != next.NonceCeiling ||
		old.SignatureAlgorithm != next.SignatureAlgorithm ||
		!slices.Equal(old.TrustedProxies, next.TrustedProxies)
}
