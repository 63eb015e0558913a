package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LoadedFiles []string        `yaml:"-"` // Track all files loaded for this config
	Include     []string        `yaml:"include"`
	Debug       bool            `yaml:"debug"`
	MaxNodes    int             `yaml:"maxNodes"`
	HotReload   bool            `yaml:"hotReload"`
	General     GeneralConfig   `yaml:"general"`
	Paths       PathsConfig     `yaml:"paths"`
	Loggers     []LoggerConfig  `yaml:"loggers"`
	Listeners   ListenersConfig `yaml:"listeners"`
	Session     SessionConfig   `yaml:"session"`
	Transfers   TransferConfig  `yaml:"transfers"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}

type GeneralConfig struct {
	BoardName   string `yaml:"boardName"`
	Description string `yaml:"description"`
	Hostname    string `yaml:"hostname"`
	Sysop       string `yaml:"sysop"`
	// Welcome and Goodbye are CP437 art files shown around a session.
	Welcome string `yaml:"welcome"`
	Goodbye string `yaml:"goodbye"`
}

type PathsConfig struct {
	Data string `yaml:"data"`
	Keys string `yaml:"keys"`
}

type LoggerConfig struct {
	Stdout     bool   `yaml:"stdout,omitempty"`
	File       string `yaml:"file,omitempty"`
	Level      string `yaml:"level"`
	Source     bool   `yaml:"source"`
	HideTime   bool   `yaml:"hideTime,omitempty"`
	TimeFormat string `yaml:"timeFormat,omitempty"`
}

type ListenersConfig struct {
	Telnet TelnetConfig `yaml:"telnet"`
	SSH    SSHConfig    `yaml:"ssh"`
}

type TelnetConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type SSHConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	KeyFile string `yaml:"keyFile"`
}

// SessionConfig drives the per-connection transport and negotiation.
type SessionConfig struct {
	DefaultEncoding    string        `yaml:"defaultEncoding"`
	NegotiationTimeout time.Duration `yaml:"negotiationTimeout"`
	RIPProbe           *bool         `yaml:"ripProbe"`
	RIPProbeDelay      time.Duration `yaml:"ripProbeDelay"`
	RIPProbeTimeout    time.Duration `yaml:"ripProbeTimeout"`
	LoginAttempts      int           `yaml:"loginAttempts"`
	BufferSize         int           `yaml:"bufferSize"`
	FlowControlChunk   int           `yaml:"flowControlChunk"`
}

// ProbeRIP reports whether the RIP probe runs; it defaults to on.
func (s SessionConfig) ProbeRIP() bool {
	return s.RIPProbe == nil || *s.RIPProbe
}

type TransferConfig struct {
	RawTimeout    time.Duration `yaml:"rawTimeout"`
	DownloadRoot  string        `yaml:"downloadRoot"`
	UploadRoot    string        `yaml:"uploadRoot"`
	MaxUploadSize int64         `yaml:"maxUploadSize"`
	Xmodem        XmodemConfig  `yaml:"xmodem"`
	Zmodem        ZmodemConfig  `yaml:"zmodem"`
	Kermit        KermitConfig  `yaml:"kermit"`
}

type XmodemConfig struct {
	// Checksum makes uploads ask for the 8-bit checksum instead of CRC-16.
	Checksum      bool          `yaml:"checksum"`
	MaxRetries    int           `yaml:"maxRetries"`
	StartAttempts int           `yaml:"startAttempts"`
	StartTimeout  time.Duration `yaml:"startTimeout"`
}

type ZmodemConfig struct {
	Sz string `yaml:"sz"`
	Rz string `yaml:"rz"`
}

type KermitConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Load(filename string) (*Config, error) {
	// Start with a base config
	cfg := &Config{
		LoadedFiles: []string{},
	}

	// Keep track of processed files to avoid infinite loops
	processed := make(map[string]bool)

	err := loadRecursive(filename, cfg, processed)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills every unset value this server depends on.
func (c *Config) ApplyDefaults() {
	if c.MaxNodes <= 0 {
		c.MaxNodes = 32
	}
	if c.Paths.Data == "" {
		c.Paths.Data = "data"
	}
	if c.Paths.Keys == "" {
		c.Paths.Keys = filepath.Join(c.Paths.Data, "keys")
	}
	if c.Listeners.SSH.KeyFile == "" {
		c.Listeners.SSH.KeyFile = filepath.Join(c.Paths.Keys, "ssh_host_ed25519_key")
	}
	if c.Listeners.Telnet.Port == 0 {
		c.Listeners.Telnet.Port = 2323
	}
	if c.Listeners.SSH.Port == 0 {
		c.Listeners.SSH.Port = 2222
	}

	s := &c.Session
	if s.DefaultEncoding == "" {
		s.DefaultEncoding = "utf-8"
	}
	if s.NegotiationTimeout <= 0 {
		s.NegotiationTimeout = 2 * time.Second
	}
	if s.RIPProbeDelay <= 0 {
		s.RIPProbeDelay = 200 * time.Millisecond
	}
	if s.RIPProbeTimeout <= 0 {
		s.RIPProbeTimeout = 500 * time.Millisecond
	}
	if s.LoginAttempts <= 0 {
		s.LoginAttempts = 3
	}
	if s.BufferSize <= 0 {
		s.BufferSize = 1 << 20
	}
	if s.FlowControlChunk <= 0 {
		s.FlowControlChunk = 256
	}

	t := &c.Transfers
	if t.RawTimeout <= 0 {
		t.RawTimeout = 10 * time.Second
	}
	if t.DownloadRoot == "" {
		t.DownloadRoot = filepath.Join(c.Paths.Data, "files")
	}
	if t.UploadRoot == "" {
		t.UploadRoot = filepath.Join(c.Paths.Data, "uploads")
	}
	if t.Xmodem.MaxRetries <= 0 {
		t.Xmodem.MaxRetries = 10
	}
	if t.Xmodem.StartAttempts <= 0 {
		t.Xmodem.StartAttempts = 60
	}
	if t.Xmodem.StartTimeout <= 0 {
		t.Xmodem.StartTimeout = time.Second
	}
	if t.Zmodem.Sz == "" {
		t.Zmodem.Sz = "sz"
	}
	if t.Zmodem.Rz == "" {
		t.Zmodem.Rz = "rz"
	}
	if t.Kermit.Path == "" {
		t.Kermit.Path = "kermit"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9323"
	}
}

func loadRecursive(filename string, cfg *Config, processed map[string]bool) error {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return err
	}

	if processed[absPath] {
		return nil // Already processed
	}
	processed[absPath] = true
	cfg.LoadedFiles = append(cfg.LoadedFiles, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}

	// Expand environment variables in the YAML content
	expandedData := []byte(os.ExpandEnv(string(data)))

	// Unmarshal into a temporary struct to load includes first
	var tempCfg struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(expandedData, &tempCfg); err != nil {
		return err
	}

	baseDir := filepath.Dir(absPath)
	for _, includePath := range tempCfg.Include {
		// Resolve relative paths relative to the current config file
		fullPath := includePath
		if !filepath.IsAbs(includePath) {
			fullPath = filepath.Join(baseDir, includePath)
		}

		if err := loadRecursive(fullPath, cfg, processed); err != nil {
			return fmt.Errorf("failed to load included config %s: %w", fullPath, err)
		}
	}

	// Now apply the current file's configuration over the accumulated config
	if err := yaml.Unmarshal(expandedData, cfg); err != nil {
		return err
	}

	return nil
}
