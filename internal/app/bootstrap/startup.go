// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. Nothing
// needs warming yet, so it records the effective runtime settings.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	cur := timeouts.Current()
	logger.Info("eldercircle starting",
		zap.String("env", coreCfg.Env),
		zap.String("database", appCfg.MongoDatabase),
		zap.Duration("timeout_ping", cur.Ping),
		zap.Duration("timeout_short", cur.Short),
		zap.Duration("timeout_long", cur.Long),
		zap.String("audit_link", appCfg.AuditLogLink),
		zap.String("audit_auth", appCfg.AuditLogAuth),
		zap.Int("register_per_minute", appCfg.RegisterPerMinute))
	return nil
}
