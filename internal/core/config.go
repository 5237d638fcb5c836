package core

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultControlSocket is the Unix socket the control plane listens on.
const DefaultControlSocket = "/var/run/st-proxy.sock"

// ControlConfig configures the control-plane transport.
type ControlConfig struct {
	// Socket is the Unix socket path (named pipe name on Windows).
	Socket string `yaml:"socket,omitempty"`
}

// RedirectConfig configures the reference redirect host.
type RedirectConfig struct {
	// Listen is the address redirected TCP connections arrive on. Empty disables the host.
	Listen string `yaml:"listen,omitempty"`
	// RoutingMark is stamped on outbound sockets (SO_MARK) so the firewall
	// does not intercept them again. Zero leaves sockets unmarked.
	RoutingMark int `yaml:"routing_mark,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging  LogConfig      `yaml:"logging,omitempty"`
	Vpn      VpnState       `yaml:"vpn"`
	Control  ControlConfig  `yaml:"control,omitempty"`
	Redirect RedirectConfig `yaml:"redirect,omitempty"`
}

// ConfigManager handles loading and saving configuration.
type ConfigManager struct {
	mu       sync.RWMutex
	config   Config
	filePath string
	bus      *EventBus
}

// NewConfigManager creates a config manager that reads from the given file.
func NewConfigManager(filePath string, bus *EventBus) *ConfigManager {
	return &ConfigManager{
		filePath: filePath,
		bus:      bus,
	}
}

// defaultConfig returns an empty but valid configuration.
func defaultConfig() Config {
	return Config{
		Control: ControlConfig{Socket: DefaultControlSocket},
	}
}

// Load reads and parses the configuration from disk.
// If the config file does not exist, it creates one with default values.
func (cm *ConfigManager) Load() error {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			Log.Infof("Core", "Config %s not found, creating default config", cm.filePath)
			cm.mu.Lock()
			cm.config = defaultConfig()
			cm.mu.Unlock()
			if saveErr := cm.Save(); saveErr != nil {
				return fmt.Errorf("[Core] failed to create default config: %w", saveErr)
			}
			return nil
		}
		return fmt.Errorf("[Core] failed to read config %s: %w", cm.filePath, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("[Core] failed to parse config: %w", err)
	}

	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()

	cm.bus.Publish(Event{Type: EventConfigReloaded})
	return nil
}

// Save writes the current configuration to disk.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	data, err := yaml.Marshal(&cm.config)
	cm.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("[Core] failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.filePath, data, 0644); err != nil {
		return fmt.Errorf("[Core] failed to write config %s: %w", cm.filePath, err)
	}

	return nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	cfg := cm.config
	cfg.Vpn = cfg.Vpn.Clone()
	return cfg
}

// SetVpnState replaces the persisted VPN state (e.g. after a control-plane update).
func (cm *ConfigManager) SetVpnState(s VpnState) {
	cm.mu.Lock()
	cm.config.Vpn = s.Clone()
	cm.mu.Unlock()
}
