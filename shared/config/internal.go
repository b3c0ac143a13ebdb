package config

import (
	"sync"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

var _ IConfig = (*InternalConfig)(nil)

// InternalConfig implements IConfig with in-memory values. It is intended
// for tests and for embedding the server without a configuration file.
type InternalConfig struct {
	mu sync.RWMutex

	ServerAddress      string
	ServerNameValue    string
	ServerVersionValue string
	LogLevelValue      string

	AgentCardValue a2aSchema.AgentCard

	TaskStoreTypeValue string
	TaskStoreDirValue  string
	TaskStoreDSNValue  string

	AuthEnabledValue      bool
	AgentIdentityKeyValue string
	LedgerProgramIDValue  string
	LedgerRPCURLValue     string
	ServiceWalletValue    string

	CORSOriginValue string

	SSLEnabledValue      bool
	SSLModeValue         string
	SSLCertFileValue     string
	SSLKeyFileValue      string
	SSLAcmeDomainsValue  []string
	SSLAcmeEmailValue    string
	SSLAcmeCacheDirValue string
}

// NewInternalConfig creates a configuration with usable defaults.
func NewInternalConfig() *InternalConfig {
	return &InternalConfig{
		ServerAddress:      ":41241",
		ServerNameValue:    "A2A Server",
		ServerVersionValue: "dev",
		LogLevelValue:      "info",
		TaskStoreTypeValue: TaskStoreMemory,
		TaskStoreDirValue:  defaultTaskStoreDir,
		CORSOriginValue:    "*",
		SSLModeValue:       "manual",
		AgentCardValue: a2aSchema.AgentCard{
			Name:    "A2A Server",
			Version: "dev",
			Capabilities: a2aSchema.AgentCapabilities{
				Streaming: true,
			},
			Skills: []a2aSchema.AgentSkill{},
		},
	}
}

func (c *InternalConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerAddress, nil
}

func (c *InternalConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerNameValue, nil
}

func (c *InternalConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerVersionValue, nil
}

func (c *InternalConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LogLevelValue, nil
}

func (c *InternalConfig) AgentCard(agentURL string) (a2aSchema.AgentCard, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card := c.AgentCardValue
	if card.URL == "" {
		card.URL = agentURL
	}
	applyCardDefaults(&card)
	return card, nil
}

func (c *InternalConfig) TaskStoreType() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.TaskStoreTypeValue == "" {
		return TaskStoreMemory, nil
	}
	return c.TaskStoreTypeValue, nil
}

func (c *InternalConfig) TaskStoreDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.TaskStoreDirValue == "" {
		return defaultTaskStoreDir, nil
	}
	return c.TaskStoreDirValue, nil
}

func (c *InternalConfig) TaskStoreDSN() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TaskStoreDSNValue, nil
}

func (c *InternalConfig) AuthEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AuthEnabledValue, nil
}

func (c *InternalConfig) AgentIdentityKey() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AgentIdentityKeyValue, nil
}

func (c *InternalConfig) LedgerProgramID() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LedgerProgramIDValue, nil
}

func (c *InternalConfig) LedgerRPCURL() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LedgerRPCURLValue, nil
}

func (c *InternalConfig) ServiceWalletKey() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServiceWalletValue, nil
}

func (c *InternalConfig) CORSOrigin() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.CORSOriginValue == "" {
		return "*", nil
	}
	return c.CORSOriginValue, nil
}

func (c *InternalConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLEnabledValue, nil
}

func (c *InternalConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.SSLModeValue == "" {
		return "manual", nil
	}
	return c.SSLModeValue, nil
}

func (c *InternalConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLCertFileValue, nil
}

func (c *InternalConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLKeyFileValue, nil
}

func (c *InternalConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.SSLAcmeDomainsValue...), nil
}

func (c *InternalConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLAcmeEmailValue, nil
}

func (c *InternalConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.SSLAcmeCacheDirValue == "" {
		return "./.autocert-cache", nil
	}
	return c.SSLAcmeCacheDirValue, nil
}

func (c *InternalConfig) Close() error {
	return nil
}

// applyCardDefaults fills the mode defaults the protocol expects when the
// configuration leaves them empty.
func applyCardDefaults(card *a2aSchema.AgentCard) {
	if len(card.DefaultInputModes) == 0 {
		card.DefaultInputModes = []string{"text"}
	}
	if len(card.DefaultOutputModes) == 0 {
		card.DefaultOutputModes = []string{"text", "file"}
	}
	if card.Skills == nil {
		card.Skills = []a2aSchema.AgentSkill{}
	}
	if card.Authentication == nil {
		card.Authentication = &a2aSchema.AgentAuthentication{Schemes: []string{}}
	}
}
