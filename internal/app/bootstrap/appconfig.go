// internal/app/bootstrap/appconfig.go
package bootstrap

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (HTTP ports, TLS,
// logging level, CORS, request limits). AppConfig is everything specific
// to TaskHub: database connection details, session settings, audit
// logging modes, and bootstrap defaults.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionDomain string // Cookie domain (blank means current host)

	// Audit logging mode: "all" (db+log), "db", "log", or "off"
	AuditLogMode string

	// Program admin bootstrap. When set, startup ensures this account
	// exists with the program_admin role so a fresh deployment is not
	// locked out.
	AdminEmail    string
	AdminName     string
	AdminPassword string

	// Root org unit ensured on startup (blank disables).
	RootOrgUnitName string
}
