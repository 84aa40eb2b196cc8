package launcher

import "time"

// Defaults bundles the baseline configuration values the launcher uses
// before config files and flags override them.

type Defaults struct {
	Node    NodeDefaults
	Network NetworkDefaults
	Storage StorageDefaults
	RPC     RPCDefaults
	Metrics MetricsDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level node settings.
type NodeDefaults struct {
	DataDir string //	Filesystem root holding the leveldb database (<datadir>/chaindata). Changing it lets you run several alligators side by side or keep test data isolated.
}

// NetworkDefaults selects the deployment identities.
type NetworkDefaults struct {
	Name string //	Deployment preset (main, test, fake). It fixes the chain ID, the alligator and governor addresses, and therefore every proxy address and every signing domain.
}

// StorageDefaults configures database behaviour.
type StorageDefaults struct {
	Preset string //	Named store preset (default, dev, production). Explicit backend/cache/handles settings win over the preset.
}

// RPCDefaults captures the HTTP JSON-RPC options.
type RPCDefaults struct {
	EnableHTTP bool          //	Toggle for the JSON-RPC HTTP server; when true the alligator namespace is served over HTTP.
	HTTPAddr   string        //	IP/interface the HTTP server binds to (0.0.0.0 for all interfaces or 127.0.0.1 for local-only).
	HTTPPort   int           //	TCP port clients connect to for HTTP RPC; default 18545 to avoid colliding with Geth's 8545.
	Timeout    time.Duration //	Read and write timeout of the HTTP server; bounds how long a slow client can hold a connection.
}

type MetricsDefaults struct {
	Enable   bool   //	Toggle for the metrics server; when true Prometheus metrics are exposed on /metrics.
	HTTPAddr string //	IP/interface the metrics server binds to.
	HTTPPort int    //	TCP port of the metrics server; default 6060.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=panic, 1=fatal, 2=error, 3=warn, 4=info, 5=debug, 6=trace), matching logrus levels.
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs (helpful on terminals, best disabled when piping to files).
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.alligator",
		},
		Network: NetworkDefaults{
			Name: "fake",
		},
		Storage: StorageDefaults{
			Preset: "default",
		},
		RPC: RPCDefaults{
			EnableHTTP: false,
			HTTPAddr:   "127.0.0.1",
			HTTPPort:   18545,
			Timeout:    30 * time.Second,
		},
		Metrics: MetricsDefaults{
			Enable:   false,
			HTTPAddr: "127.0.0.1",
			HTTPPort: 6060,
		},
		Logging: LoggingDefaults{
			Verbosity: 4,
			Format:    "text",
			Color:     false,
		},
	}
}
