package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

var _ IConfig = (*YamlConfig)(nil)

const defaultTaskStoreDir = ".a2a-tasks"

// Environment variables recognized for the auth gate. They override the
// corresponding YAML values when set.
const (
	EnvAgentIdentityKey = "A2A_AGENT_PUBKEY"
	EnvLedgerProgramID  = "A2A_LEDGER_PROGRAM_ID"
	EnvLedgerRPCURL     = "A2A_LEDGER_RPC_URL"
	EnvServiceWallet    = "A2A_SERVICE_WALLET"
)

// YamlConfig implements IConfig with YAML file-based storage. The file is
// watched with fsnotify and reloaded on change.
type YamlConfig struct {
	mu         sync.RWMutex
	configPath string
	logger     *zap.Logger
	watcher    *fsnotify.Watcher
	closeOnce  sync.Once
	done       chan struct{}

	current yamlFile
}

// yamlFile is the on-disk configuration layout.
type yamlFile struct {
	Server struct {
		Address  string `yaml:"address"`
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		LogLevel string `yaml:"log_level"`

		CORSOrigin string `yaml:"cors_origin"`

		SSL struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`

		// Agent card served at /.well-known/agent.json. Optional.
		A2A *a2aSchema.AgentCard `yaml:"a2a"`
	} `yaml:"server"`

	TaskStore struct {
		Type string `yaml:"type"` // "memory", "file" or "postgres"
		Dir  string `yaml:"dir"`
		DSN  string `yaml:"dsn"`
	} `yaml:"task_store"`

	Auth struct {
		Enabled          bool   `yaml:"enabled"`
		AgentIdentityKey string `yaml:"agent_identity_key"`
		LedgerProgramID  string `yaml:"ledger_program_id"`
		LedgerRPCURL     string `yaml:"ledger_rpc_url"`
		ServiceWalletKey string `yaml:"service_wallet_key"`
	} `yaml:"auth"`
}

// NewYamlConfig creates a new YAML-based configuration and starts watching
// the file for changes.
func NewYamlConfig(configPath string, logger *zap.Logger) (*YamlConfig, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	cfg := &YamlConfig{
		configPath: configPath,
		logger:     logger.Named("config"),
		done:       make(chan struct{}),
	}
	if err := cfg.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cfg.logger.Warn("Failed to create config watcher, hot reload disabled", zap.Error(err))
		return cfg, nil
	}
	if err := watcher.Add(configPath); err != nil {
		cfg.logger.Warn("Failed to watch config file, hot reload disabled",
			zap.String("path", configPath), zap.Error(err))
		_ = watcher.Close()
		return cfg, nil
	}
	cfg.watcher = watcher
	go cfg.watchLoop()
	return cfg, nil
}

func (c *YamlConfig) watchLoop() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.reload(); err != nil {
				c.logger.Error("Failed to reload configuration", zap.Error(err))
				continue
			}
			c.logger.Info("Configuration reloaded", zap.String("path", c.configPath))
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (c *YamlConfig) reload() error {
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", c.configPath, err)
	}
	var parsed yamlFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", c.configPath, err)
	}
	c.mu.Lock()
	c.current = parsed
	c.mu.Unlock()
	return nil
}

func (c *YamlConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.Server.Address == "" {
		return ":41241", nil
	}
	return c.current.Server.Address, nil
}

func (c *YamlConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Server.Name, nil
}

func (c *YamlConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Server.Version, nil
}

func (c *YamlConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.Server.LogLevel == "" {
		return "info", nil
	}
	return c.current.Server.LogLevel, nil
}

func (c *YamlConfig) AgentCard(agentURL string) (a2aSchema.AgentCard, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var card a2aSchema.AgentCard
	if c.current.Server.A2A != nil {
		card = *c.current.Server.A2A
	}
	if card.Name == "" {
		card.Name = c.current.Server.Name
	}
	if card.Version == "" {
		card.Version = c.current.Server.Version
	}
	if card.URL == "" {
		card.URL = agentURL
	}
	card.Capabilities.Streaming = true
	applyCardDefaults(&card)
	return card, nil
}

func (c *YamlConfig) TaskStoreType() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.current.TaskStore.Type {
	case "":
		return TaskStoreMemory, nil
	case TaskStoreMemory, TaskStoreFile, TaskStorePostgres:
		return c.current.TaskStore.Type, nil
	default:
		return "", fmt.Errorf("unknown task_store.type %q", c.current.TaskStore.Type)
	}
}

func (c *YamlConfig) TaskStoreDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.TaskStore.Dir == "" {
		return defaultTaskStoreDir, nil
	}
	return c.current.TaskStore.Dir, nil
}

func (c *YamlConfig) TaskStoreDSN() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.TaskStore.DSN, nil
}

func (c *YamlConfig) AuthEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Auth.Enabled, nil
}

func (c *YamlConfig) AgentIdentityKey() (string, error) {
	if v := os.Getenv(EnvAgentIdentityKey); v != "" {
		return v, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Auth.AgentIdentityKey, nil
}

func (c *YamlConfig) LedgerProgramID() (string, error) {
	if v := os.Getenv(EnvLedgerProgramID); v != "" {
		return v, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Auth.LedgerProgramID, nil
}

func (c *YamlConfig) LedgerRPCURL() (string, error) {
	if v := os.Getenv(EnvLedgerRPCURL); v != "" {
		return v, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Auth.LedgerRPCURL, nil
}

func (c *YamlConfig) ServiceWalletKey() (string, error) {
	if v := os.Getenv(EnvServiceWallet); v != "" {
		return v, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Auth.ServiceWalletKey, nil
}

func (c *YamlConfig) CORSOrigin() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.Server.CORSOrigin == "" {
		return "*", nil
	}
	return c.current.Server.CORSOrigin, nil
}

func (c *YamlConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Server.SSL.Enabled, nil
}

func (c *YamlConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.Server.SSL.Mode == "" {
		return "manual", nil
	}
	return c.current.Server.SSL.Mode, nil
}

func (c *YamlConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Server.SSL.CertFile, nil
}

func (c *YamlConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Server.SSL.KeyFile, nil
}

func (c *YamlConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.current.Server.SSL.AcmeDomains...), nil
}

func (c *YamlConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Server.SSL.AcmeEmail, nil
}

func (c *YamlConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.Server.SSL.AcmeCacheDir == "" {
		return "./.autocert-cache", nil
	}
	return c.current.Server.SSL.AcmeCacheDir, nil
}

func (c *YamlConfig) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.watcher != nil {
			err = c.watcher.Close()
		}
	})
	return err
}
