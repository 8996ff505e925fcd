// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/features/apierr"
	healthfeature "github.com/dalemusser/taskhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/taskhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/taskhub/internal/app/features/logout"
	orgunitsfeature "github.com/dalemusser/taskhub/internal/app/features/orgunits"
	tasksfeature "github.com/dalemusser/taskhub/internal/app/features/tasks"
	"github.com/dalemusser/taskhub/internal/app/store/audit"
	"github.com/dalemusser/taskhub/internal/app/system/auditlog"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup,
// and Startup have completed. TaskHub is a JSON API: the router mounts
// the health endpoint, authentication, org unit management, and the
// task workflow endpoints, with session loading applied globally.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	if err := auth.InitSessionStore(appCfg.SessionKey, appCfg.SessionDomain, secure, logger); err != nil {
		logger.Error("session store init failed", zap.Error(err))
		return nil, err
	}

	db := deps.TaskHubMongoDatabase
	errLog := apierr.NewErrorLogger(logger)
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{Mode: appCfg.AuditLogMode})

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(auth.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.TaskHubMongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Authentication
	loginHandler := loginfeature.NewHandler(db, errLog, auditLog, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(errLog, auditLog, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	// Org structure and memberships
	orgHandler := orgunitsfeature.NewHandler(db, errLog, auditLog, logger)
	r.Mount("/org-units", orgunitsfeature.Routes(orgHandler))

	// Task workflow
	taskHandler := tasksfeature.NewHandler(db, errLog, auditLog, logger)
	r.Mount("/tasks", tasksfeature.Routes(taskHandler))

	return r, nil
}
