package config

import (
	"errors"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// ErrNotFound is returned when a requested configuration entry does not exist.
var ErrNotFound = errors.New("config: record not found")

// Task store backends selectable through configuration.
const (
	TaskStoreMemory   = "memory"
	TaskStoreFile     = "file"
	TaskStorePostgres = "postgres"
)

// IConfig is the configuration surface consumed by the server. Implementations
// must be safe for concurrent use; the YAML implementation reloads on file
// change, so callers should not cache returned values across requests.
type IConfig interface {
	// ListenAddr returns the address the HTTP server binds to, e.g. ":41241".
	ListenAddr() (string, error)

	ServerName() (string, error)
	ServerVersion() (string, error)
	LogLevel() (string, error)

	// AgentCard returns the agent card served at /.well-known/agent.json,
	// with the URL field resolved against the given public endpoint.
	AgentCard(agentURL string) (a2aSchema.AgentCard, error)

	// Task store selection.
	TaskStoreType() (string, error)
	TaskStoreDir() (string, error) // file backend base directory
	TaskStoreDSN() (string, error) // postgres backend connection string

	// Auth gate settings. When AuthEnabled is false the remaining values
	// are not consulted.
	AuthEnabled() (bool, error)
	AgentIdentityKey() (string, error)
	LedgerProgramID() (string, error)
	LedgerRPCURL() (string, error)
	ServiceWalletKey() (string, error)

	// CORS policy: returns the Access-Control-Allow-Origin value, "*" by default.
	CORSOrigin() (string, error)

	// SSL settings for the HTTP transport.
	SSLEnabled() (bool, error)
	SSLMode() (string, error) // "manual" or "acme"
	SSLCertFile() (string, error)
	SSLKeyFile() (string, error)
	SSLAcmeDomains() ([]string, error)
	SSLAcmeEmail() (string, error)
	SSLAcmeCacheDir() (string, error)

	// Close releases any resources held by the configuration (file watchers).
	Close() error
}
