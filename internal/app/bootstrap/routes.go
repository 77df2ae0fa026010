// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"sync"
	"time"

	elderfeature "github.com/dalemusser/eldercircle/internal/app/features/elder"
	errorsfeature "github.com/dalemusser/eldercircle/internal/app/features/errors"
	familyfeature "github.com/dalemusser/eldercircle/internal/app/features/family"
	healthfeature "github.com/dalemusser/eldercircle/internal/app/features/health"
	heartbeatfeature "github.com/dalemusser/eldercircle/internal/app/features/heartbeat"
	loginfeature "github.com/dalemusser/eldercircle/internal/app/features/login"
	logoutfeature "github.com/dalemusser/eldercircle/internal/app/features/logout"
	profilefeature "github.com/dalemusser/eldercircle/internal/app/features/profile"
	registerfeature "github.com/dalemusser/eldercircle/internal/app/features/register"
	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/policy/elderpolicy"
	"github.com/dalemusser/eldercircle/internal/app/store/audit"
	elderstore "github.com/dalemusser/eldercircle/internal/app/store/elders"
	identitystore "github.com/dalemusser/eldercircle/internal/app/store/identities"
	pendingstore "github.com/dalemusser/eldercircle/internal/app/store/pendingrequests"
	userstore "github.com/dalemusser/eldercircle/internal/app/store/users"
	"github.com/dalemusser/eldercircle/internal/app/system/auditlog"
	"github.com/dalemusser/eldercircle/internal/app/system/auth"
	"github.com/dalemusser/eldercircle/internal/app/system/ratelimit"
	"github.com/dalemusser/eldercircle/internal/app/system/txn"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// stopper is anything with a background loop that Shutdown must end.
type stopper interface{ Stop() }

var (
	stoppersMu sync.Mutex
	stoppers   []stopper
)

func registerStopper(s stopper) {
	stoppersMu.Lock()
	defer stoppersMu.Unlock()
	stoppers = append(stoppers, s)
}

func stopAll() {
	stoppersMu.Lock()
	defer stoppersMu.Unlock()
	for _, s := range stoppers {
		s.Stop()
	}
	stoppers = nil
}

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. It builds the stores and the linking
// service once, then mounts a feature router per area:
//
//	/health      liveness and database check
//	/register    elder and family sign-up
//	/login       password sign-in
//	/logout      end the session
//	/heartbeat   keep last_active current
//	/me          the signed-in user's own record
//	/elders      elder summaries, gated by elderpolicy
//	/elder       elder-only: code, requests, approvals, family
//	/family      family-only: link by code, linked elder
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	db := deps.MongoDatabase

	// LoadSessionUser re-reads the user on each request so an unlink or
	// approval takes effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db))

	identities := identitystore.New(db)
	users := userstore.New(db)

	svc := linking.New(linking.Deps{
		Identities:      identities,
		Users:           users,
		Elders:          elderstore.New(db),
		Pending:         pendingstore.New(db),
		Tx:              txn.New(deps.MongoClient, logger),
		Log:             logger.Named("linking"),
		MaxCodeAttempts: appCfg.CodeMaxAttempts,
	})

	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{
		Link: appCfg.AuditLogLink,
		Auth: appCfg.AuditLogAuth,
	})

	loginLimiter := ratelimit.NewLoginLimiter()
	registerStopper(loginLimiter)

	var registerLimiter *ratelimit.Limiter
	if appCfg.RegisterPerMinute > 0 {
		registerLimiter = ratelimit.New(appCfg.RegisterPerMinute, time.Minute)
		registerStopper(registerLimiter)
	}

	errHandler := errorsfeature.NewHandler()

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	r.NotFound(errHandler.NotFound)
	r.MethodNotAllowed(errHandler.MethodNotAllowed)

	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(deps.MongoClient, logger)))

	r.Mount("/register", registerfeature.Routes(registerfeature.NewHandler(svc, auditLog, logger), registerLimiter))
	r.Mount("/login", loginfeature.Routes(loginfeature.NewHandler(identities, svc, sessionMgr, auditLog, loginLimiter, logger)))
	r.Mount("/logout", logoutfeature.Routes(logoutfeature.NewHandler(sessionMgr, auditLog, logger), sessionMgr))

	r.Mount("/heartbeat", heartbeatfeature.Routes(heartbeatfeature.NewHandler(svc, logger), sessionMgr))

	profileHandler := profilefeature.NewHandler(svc, elderpolicy.New(users), auditLog, logger)
	r.Mount("/me", profilefeature.Routes(profileHandler, sessionMgr))
	r.Mount("/elders", profilefeature.ElderRoutes(profileHandler, sessionMgr))

	r.Mount("/elder", elderfeature.Routes(elderfeature.NewHandler(svc, auditLog, logger), sessionMgr))
	r.Mount("/family", familyfeature.Routes(familyfeature.NewHandler(svc, auditLog, logger), sessionMgr))

	// Targets for auth redirects and explicit denials.
	r.Get("/forbidden", errHandler.Forbidden)
	r.Get("/unauthorized", errHandler.Unauthorized)

	return r, nil
}
