// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, log level, CORS); everything the
// linking service itself needs lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI             string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase        string // Database name within MongoDB
	MongoMaxPoolSize     uint64 // Maximum connections in the pool
	MongoMinPoolSize     uint64 // Connections kept warm
	MongoConnectAttempts uint   // Ping attempts before startup gives up

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Linking
	CodeMaxAttempts int // Elder code generation attempts before giving up

	// Audit logging: "all", "db", "log" or "off"
	AuditLogLink string
	AuditLogAuth string

	// Throttling
	RegisterPerMinute int // Registrations allowed per client IP per minute (0 disables)
}
