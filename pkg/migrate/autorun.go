package migrate

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// autoRunDecision explains whether a service applies migrations at boot.
func autoRunDecision(cfg *config.Config) (bool, string) {
	switch {
	case !cfg.FeatureFlags.AutoMigrate:
		return false, "flag_disabled"
	case cfg.App.IsProd():
		return false, "prod_environment"
	default:
		return true, ""
	}
}

// MaybeRunDev applies the embedded migrations when STOREFRONT_AUTO_MIGRATE is
// set outside production. Every service calls it at boot, so runs are
// serialized with a postgres advisory lock.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": cfg.Service.Kind})
	run, skipped := autoRunDecision(cfg)
	if !run {
		logg.Debug(logg.WithField(ctx, "reason", skipped), "migrate.autorun.skipped")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	files, err := fs.Sub(embedded, embeddedDir)
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return fmt.Errorf("building migration lock: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, files, goose.WithSessionLocker(locker))
	if err != nil {
		return fmt.Errorf("building goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"applied":        len(results),
		"schema_version": version,
	}), "migrate.autorun.done")
	return nil
}
