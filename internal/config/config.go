// ABOUTME: Application configuration
// ABOUTME: Flag defaults overlaid by an optional YAML file, then by the command line
package config

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/screamrx/screamrx/pkg/audio/output"
	"github.com/screamrx/screamrx/pkg/scream"
	yaml "gopkg.in/yaml.v2"
)

const configFileOption = "config.file"

type Config struct {
	Receiver   ReceiverConfig   `yaml:"receiver,omitempty"`
	Output     OutputConfig     `yaml:"output,omitempty"`
	Server     ServerConfig     `yaml:"server,omitempty"`
	Discovery  DiscoveryConfig  `yaml:"discovery,omitempty"`
	Supervisor SupervisorConfig `yaml:"supervisor,omitempty"`
	Settings   SettingsConfig   `yaml:"settings,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`
	NoTUI      bool             `yaml:"no-tui,omitempty"`
}

type ReceiverConfig struct {
	Profile   string `yaml:"profile,omitempty"`
	Interface string `yaml:"interface,omitempty"`
	ByteOrder string `yaml:"byte-order,omitempty"` // "", "le" or "be"; empty keeps the profile's order
	Realtime  bool   `yaml:"realtime,omitempty"`
	Autostart bool   `yaml:"autostart,omitempty"`
}

type OutputConfig struct {
	Backend  string `yaml:"backend,omitempty"`
	BufferMs int    `yaml:"buffer-ms,omitempty"`
	WAVDir   string `yaml:"wav-dir,omitempty"`
}

type ServerConfig struct {
	Enabled      bool          `yaml:"enabled,omitempty"`
	ListenAddr   string        `yaml:"listen-addr,omitempty"`
	PollInterval time.Duration `yaml:"poll-interval,omitempty"`
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Instance string `yaml:"instance,omitempty"`
}

type SupervisorConfig struct {
	Restart      bool          `yaml:"restart,omitempty"`
	RestartDelay time.Duration `yaml:"restart-delay,omitempty"`
}

type SettingsConfig struct {
	File string `yaml:"file,omitempty"`
}

type LogConfig struct {
	File  string `yaml:"file,omitempty"`
	Level string `yaml:"level,omitempty"`
}

func prefixConfig(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.Receiver.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "receiver"), f)
	c.Output.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "output"), f)
	c.Server.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "server"), f)
	c.Discovery.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "discovery"), f)
	c.Supervisor.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "supervisor"), f)
	c.Settings.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "settings"), f)
	c.Log.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "log"), f)
	f.BoolVar(&c.NoTUI, prefixConfig(prefix, "no-tui"), false, "Disable the terminal UI and log to stdout as well.")
}

func (c *ReceiverConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Profile, prefixConfig(prefix, "profile"), "scream", "Protocol profile: scream (5-byte header) or legacy (12-byte header).")
	f.StringVar(&c.Interface, prefixConfig(prefix, "interface"), "", "Network interface to join the multicast group on. Empty uses the system default.")
	f.StringVar(&c.ByteOrder, prefixConfig(prefix, "byte-order"), "", "Payload byte order override: le or be. Empty uses the profile's order.")
	f.BoolVar(&c.Realtime, prefixConfig(prefix, "realtime"), true, "Lock the receive loop to an OS thread and raise its priority.")
	f.BoolVar(&c.Autostart, prefixConfig(prefix, "autostart"), false, "Start receiving at launch even if the service was stopped last time.")
}

func (c *OutputConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Backend, prefixConfig(prefix, "backend"), output.DefaultBackend, "Output backend: malgo, oto or wav.")
	f.IntVar(&c.BufferMs, prefixConfig(prefix, "buffer-ms"), output.DefaultBufferMs, "Device buffer length in milliseconds.")
	f.StringVar(&c.WAVDir, prefixConfig(prefix, "wav-dir"), "recordings", "Directory for the wav backend.")
}

func (c *ServerConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.BoolVar(&c.Enabled, prefixConfig(prefix, "enabled"), true, "Serve the status API.")
	f.StringVar(&c.ListenAddr, prefixConfig(prefix, "listen-addr"), ":4011", "Status API listen address.")
	f.DurationVar(&c.PollInterval, prefixConfig(prefix, "poll-interval"), 500*time.Millisecond, "Status poll interval for the websocket feed, UI and settings.")
}

func (c *DiscoveryConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.BoolVar(&c.Enabled, prefixConfig(prefix, "enabled"), true, "Advertise the status API over mDNS.")
	f.StringVar(&c.Instance, prefixConfig(prefix, "instance"), "", "mDNS instance name. Empty uses the hostname.")
}

func (c *SupervisorConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.BoolVar(&c.Restart, prefixConfig(prefix, "restart"), true, "Restart the receiver after a transport failure.")
	f.DurationVar(&c.RestartDelay, prefixConfig(prefix, "restart-delay"), time.Second, "Delay before restarting after a failure.")
}

func (c *SettingsConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.File, prefixConfig(prefix, "file"), "screamrx-settings.yaml", "Where the service state is persisted.")
}

func (c *LogConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.File, prefixConfig(prefix, "file"), "screamrx.log", "Log file.")
	f.StringVar(&c.Level, prefixConfig(prefix, "level"), "info", "Log level: debug, info, warn or error.")
}

// Validate checks values flags cannot constrain
func (c *Config) Validate() error {
	if _, err := c.Receiver.ResolveProfile(); err != nil {
		return err
	}
	if !slices.Contains(output.Backends, c.Output.Backend) {
		return fmt.Errorf("unknown output backend %q", c.Output.Backend)
	}
	if c.Output.BufferMs <= 0 {
		return fmt.Errorf("output buffer must be positive, got %dms", c.Output.BufferMs)
	}
	if c.Server.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Server.PollInterval)
	}
	if c.Supervisor.RestartDelay < 0 {
		return fmt.Errorf("restart delay must not be negative, got %s", c.Supervisor.RestartDelay)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured log level
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return level, fmt.Errorf("unknown log level %q", c.Level)
	}
	return level, nil
}

// ResolveProfile returns the selected profile with any byte order override applied
func (c ReceiverConfig) ResolveProfile() (scream.Profile, error) {
	p, err := scream.ProfileByName(c.Profile)
	if err != nil {
		return p, err
	}
	switch c.ByteOrder {
	case "":
	case "le", "little":
		p.ByteOrder = binary.LittleEndian
	case "be", "big":
		p.ByteOrder = binary.BigEndian
	default:
		return p, fmt.Errorf("unknown byte order %q", c.ByteOrder)
	}
	return p, nil
}

// Load registers flags on fs, overlays the -config.file YAML and then the
// command line itself.
func Load(args []string, fs *flag.FlagSet) (*Config, error) {
	var configFile string

	// find -config.file first; parsing stops at the first unknown flag so
	// keep trying the remaining arguments
	pre := flag.NewFlagSet("", flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	pre.StringVar(&configFile, configFileOption, "", "")
	for rest := args; len(rest) > 0; rest = rest[1:] {
		_ = pre.Parse(rest)
	}

	cfg := &Config{}
	cfg.RegisterFlagsAndApplyDefaults("", fs)

	if configFile != "" {
		if err := loadYamlFile(configFile, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	// registered so the command line parse accepts it
	fs.String(configFileOption, configFile, "Configuration file to load.")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "failed to parse flags")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func loadYamlFile(file string, d interface{}) error {
	filename, _ := filepath.Abs(file)
	buf, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(buf, d)
}
