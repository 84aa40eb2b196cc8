// This file maps the CLI context and the optional YAML config file onto the
// launcher Config.

package launcher

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/urfave/cli.v1"
	"gopkg.in/yaml.v3"

	"github.com/rony4d/go-alligator/integration"
	"github.com/rony4d/go-alligator/params"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Network NetworkConfig `yaml:"network"`
	Store   StoreConfig   `yaml:"store"`
	// Genesis is the path of a YAML devnet genesis applied at startup.
	Genesis string `yaml:"genesis"`
}

type NodeConfig struct {
	DataDir string        `yaml:"datadir"`
	RPC     RPCConfig     `yaml:"rpc"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type RPCConfig struct {
	HTTPEnabled bool          `yaml:"http"`
	HTTPAddr    string        `yaml:"addr"`
	HTTPPort    int           `yaml:"port"`
	Timeout     time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Port    int    `yaml:"port"`
}

type LoggingConfig struct {
	Verbosity int    `yaml:"verbosity"`
	Format    string `yaml:"format"`
	Color     bool   `yaml:"color"`
	SentryDSN string `yaml:"sentry"`
}

// NetworkConfig selects a params preset; non-empty fields override it.
type NetworkConfig struct {
	Name      string `yaml:"name"`
	ChainID   uint64 `yaml:"chainid"`
	Alligator string `yaml:"alligator"`
	Governor  string `yaml:"governor"`
	Owner     string `yaml:"owner"`
}

// StoreConfig selects a store preset; non-zero fields override it.
type StoreConfig struct {
	Preset  string `yaml:"preset"`
	Backend string `yaml:"backend"`
	CacheMB int    `yaml:"cache"`
	Handles int    `yaml:"handles"`
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: resolvePath(d.Node.DataDir),
			RPC: RPCConfig{
				HTTPEnabled: d.RPC.EnableHTTP,
				HTTPAddr:    d.RPC.HTTPAddr,
				HTTPPort:    d.RPC.HTTPPort,
				Timeout:     d.RPC.Timeout,
			},
			Metrics: MetricsConfig{
				Enabled: d.Metrics.Enable,
				Addr:    d.Metrics.HTTPAddr,
				Port:    d.Metrics.HTTPPort,
			},
			Logging: LoggingConfig{
				Verbosity: d.Logging.Verbosity,
				Format:    d.Logging.Format,
				Color:     d.Logging.Color,
			},
		},
		Network: NetworkConfig{Name: d.Network.Name},
		Store:   StoreConfig{Preset: d.Storage.Preset},
	}
}

// MakeAllConfigs merges defaults, config-file values, and CLI overrides into
// a single config struct. The data directory is created only when the
// resolved store is on disk.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()
	f := flagSource{ctx}

	if file := f.String("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(f, &cfg)

	preset, err := cfg.StorePreset()
	if err != nil {
		return Config{}, err
	}
	if preset.Backend == integration.BackendLevelDB {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// StorePreset resolves the named preset and applies the explicit overrides.
func (c Config) StorePreset() (integration.PresetConfig, error) {
	preset := integration.DefaultPreset()
	if c.Store.Preset != "" {
		named, err := integration.GetPresetByName(c.Store.Preset)
		if err != nil {
			return integration.PresetConfig{}, err
		}
		integration.ApplyPreset(&preset, named)
	}
	if c.Store.Backend != "" {
		preset.Backend = c.Store.Backend
	}
	if c.Store.CacheMB > 0 {
		preset.CacheMB = c.Store.CacheMB
	}
	if c.Store.Handles > 0 {
		preset.Handles = c.Store.Handles
	}
	preset.EnableMetrics = preset.EnableMetrics || c.Node.Metrics.Enabled
	switch preset.Backend {
	case integration.BackendMemory, integration.BackendLevelDB:
	default:
		return integration.PresetConfig{}, fmt.Errorf("unknown storage backend %q", preset.Backend)
	}
	return preset, nil
}

// Params resolves the network preset and applies the identity overrides.
func (c Config) Params() (params.Params, error) {
	p, ok := params.ByName(c.Network.Name)
	if !ok {
		return params.Params{}, fmt.Errorf("unknown network %q (valid: main, test, fake)", c.Network.Name)
	}
	if c.Network.ChainID != 0 {
		p.ChainID = c.Network.ChainID
	}
	if c.Network.Alligator != "" {
		addr, err := parseAddress("alligator", c.Network.Alligator)
		if err != nil {
			return params.Params{}, err
		}
		p.Alligator = addr
	}
	if c.Network.Governor != "" {
		addr, err := parseAddress("governor", c.Network.Governor)
		if err != nil {
			return params.Params{}, err
		}
		p.Governor = addr
	}
	return p, nil
}

// OwnerAddress is the configured owner, zero when unset.
func (c Config) OwnerAddress() (common.Address, error) {
	if c.Network.Owner == "" {
		return common.Address{}, nil
	}
	return parseAddress("owner", c.Network.Owner)
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

func loadConfigFile(path string, cfg *Config) error {
	blob, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(blob, cfg)
}

func applyCLIOverrides(f flagSource, cfg *Config) {
	if f.IsSet("datadir") {
		cfg.Node.DataDir = resolvePath(f.String("datadir"))
	}

	if f.Bool("http") {
		cfg.Node.RPC.HTTPEnabled = true
	}
	if f.IsSet("http.addr") {
		cfg.Node.RPC.HTTPAddr = f.String("http.addr")
	}
	if f.IsSet("http.port") {
		cfg.Node.RPC.HTTPPort = f.Int("http.port")
	}
	if f.IsSet("rpc.timeout") {
		cfg.Node.RPC.Timeout = f.Duration("rpc.timeout")
	}

	if f.Bool("metrics") {
		cfg.Node.Metrics.Enabled = true
	}
	if f.IsSet("metrics.addr") {
		cfg.Node.Metrics.Addr = f.String("metrics.addr")
	}
	if f.IsSet("metrics.port") {
		cfg.Node.Metrics.Port = f.Int("metrics.port")
	}

	if f.IsSet("log.format") {
		cfg.Node.Logging.Format = f.String("log.format")
	}
	if f.IsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = f.Int("log.verbosity")
	}
	if f.IsSet("log.color") {
		cfg.Node.Logging.Color = f.Bool("log.color")
	}
	if f.IsSet("log.sentry") {
		cfg.Node.Logging.SentryDSN = f.String("log.sentry")
	}

	if f.IsSet("network") {
		cfg.Network.Name = f.String("network")
	}
	if f.IsSet("chainid") {
		cfg.Network.ChainID = f.Uint64("chainid")
	}
	if f.IsSet("alligator") {
		cfg.Network.Alligator = f.String("alligator")
	}
	if f.IsSet("governor") {
		cfg.Network.Governor = f.String("governor")
	}
	if f.IsSet("owner") {
		cfg.Network.Owner = f.String("owner")
	}

	if f.IsSet("preset") {
		cfg.Store.Preset = f.String("preset")
	}
	if f.IsSet("store") {
		cfg.Store.Backend = f.String("store")
	}
	if f.IsSet("cache") {
		cfg.Store.CacheMB = f.Int("cache")
	}
	if f.IsSet("handles") {
		cfg.Store.Handles = f.Int("handles")
	}
	if f.IsSet("genesis") {
		cfg.Genesis = resolvePath(f.String("genesis"))
	}
}

// flagSource reads a flag from the command context first and falls back to
// the global one, so flags work on either side of the subcommand name.
type flagSource struct {
	ctx *cli.Context
}

func (f flagSource) IsSet(name string) bool {
	return f.ctx.IsSet(name) || f.ctx.GlobalIsSet(name)
}

func (f flagSource) String(name string) string {
	if f.ctx.IsSet(name) {
		return f.ctx.String(name)
	}
	return f.ctx.GlobalString(name)
}

func (f flagSource) Int(name string) int {
	if f.ctx.IsSet(name) {
		return f.ctx.Int(name)
	}
	return f.ctx.GlobalInt(name)
}

func (f flagSource) Uint64(name string) uint64 {
	if f.ctx.IsSet(name) {
		return f.ctx.Uint64(name)
	}
	return f.ctx.GlobalUint64(name)
}

func (f flagSource) Bool(name string) bool {
	return f.ctx.Bool(name) || f.ctx.GlobalBool(name)
}

func (f flagSource) Duration(name string) time.Duration {
	if f.ctx.IsSet(name) {
		return f.ctx.Duration(name)
	}
	return f.ctx.GlobalDuration(name)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseAddress(what, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", what, s)
	}
	return common.HexToAddress(s), nil
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
