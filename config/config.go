// Package config enumerates every configuration item spec §6 names,
// parsed with go-flags exactly the way the teacher's lnd.go parses its
// own config struct: command-line flags first, then an optional ini
// file, with DefaultConfig supplying the baseline every field starts
// from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/wire"
)

const (
	defaultConfigFilename = "spectrum.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "spectrum.log"
)

var (
	defaultHomeDir    = appDataDir("spectrum")
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// Config holds every item spec §6 enumerates, plus the ambient items
// (home/data/log dirs, profiling) every lnd-style binary carries.
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	HomeDir    string `long:"homedir" description:"The directory to store the config, data, and log files in"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"d" long:"datadir" description:"The directory to store the peer book in"`
	LogDir     string `long:"logdir" description:"Directory to log output"`

	Profile string `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65535"`

	ListenAddr string `long:"listenaddr" description:"The address the swarm listener binds to"`
	RPCAddr    string `long:"rpcaddr" description:"The address the control-surface gRPC server binds to"`

	// --- Peer manager (spec §4.1/§6) ------------------------------

	MinKnownPeers int `long:"minknownpeers" description:"Minimum number of known peers the peer book should retain"`
	MinOutbound   int `long:"minoutbound" description:"Minimum number of outbound connections to maintain"`
	MaxInbound    int `long:"maxinbound" description:"Maximum number of inbound connections to accept"`
	MaxOutbound   int `long:"maxoutbound" description:"Maximum number of outbound connections to dial"`

	MinAcceptableReputation int32 `long:"minacceptablereputation" description:"Minimum reputation required to accept an inbound connection"`
	MinReputation           int32 `long:"minreputation" description:"Reputation floor below which a peer is dropped and banned"`

	ConnResetOutboundBackoff time.Duration `long:"connresetoutboundbackoff" description:"Backoff applied to a non-reserved peer's next outbound dial after it resets the connection"`
	ConnAllocInterval        time.Duration `long:"connallocinterval" description:"Interval between connection-allocation ticks"`
	ProtAllocInterval        time.Duration `long:"protallocinterval" description:"Interval between protocol-allocation ticks"`

	// ProtocolsAllocation is given as repeated "id:kind[:pct]" strings
	// (e.g. "0:max", "1:bounded:50", "2:zero") and parsed by
	// ParseAllocationPolicies, the way lnd.go parses repeated
	// --externalip/--rpclisten flags into a slice of typed values.
	ProtocolsAllocation []string `long:"protocolalloc" description:"Protocol allocation policy as id:kind[:pct]; may be given multiple times"`

	// --- Connection handler / upgrade (spec §4.2-§4.3, §6) ---------

	AsyncMsgBufferSize int           `long:"asyncmsgbuffersize" description:"Buffer size for protocols tolerant of being slow to drain (discovery, diffusion)"`
	SyncMsgBufferSize  int           `long:"syncmsgbuffersize" description:"Buffer size for latency-sensitive protocols (aggregation, multicast); overflow is fatal to the connection"`
	OpenTimeout        time.Duration `long:"opentimeout" description:"Timeout for the protocol upgrade procedure"`
	InitialKeepAlive   time.Duration `long:"initialkeepalive" description:"How long a connection is held open after its last protocol activity"`
	MaxMessageSize     uint32        `long:"maxmessagesize" description:"Maximum length-prefixed frame size accepted on any protocol substream"`

	// --- Aggregation / multicast (spec §4.8-§4.9, §6) ---------------

	ThresholdNum       int           `long:"thresholdnum" description:"Numerator of the aggregation termination threshold (threshold = num/denom)"`
	ThresholdDenom     int           `long:"thresholddenom" description:"Denominator of the aggregation termination threshold"`
	LevelTimeout       time.Duration `long:"leveltimeout" description:"Timeout for one aggregation overlay level"`
	RedundancyFactor   int           `long:"redundancyfactor" description:"Multicast DAG-overlay redundancy factor"`
}

// DefaultConfig returns the baseline every loaded Config starts from,
// the way lnd.go's loadConfig seeds defaultCfg before flags.Parse.
func DefaultConfig() Config {
	return Config{
		HomeDir:    defaultHomeDir,
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,

		ListenAddr: "0.0.0.0:9735",
		RPCAddr:    "localhost:9736",

		MinKnownPeers: 8,
		MinOutbound:   4,
		MaxInbound:    64,
		MaxOutbound:   16,

		MinAcceptableReputation: -1000,
		MinReputation:           -10000,

		ConnResetOutboundBackoff: 5 * time.Minute,
		ConnAllocInterval:        15 * time.Second,
		ProtAllocInterval:        15 * time.Second,

		AsyncMsgBufferSize: 64,
		SyncMsgBufferSize:  1,
		OpenTimeout:        10 * time.Second,
		InitialKeepAlive:   30 * time.Second,
		MaxMessageSize:     1 << 20,

		ThresholdNum:     2,
		ThresholdDenom:   3,
		LevelTimeout:     2 * time.Second,
		RedundancyFactor: 2,
	}
}

// Threshold returns the aggregation termination fraction as a float64,
// the form sigma.NewRound consumes.
func (c Config) Threshold() float64 {
	if c.ThresholdDenom == 0 {
		return 1
	}
	return float64(c.ThresholdNum) / float64(c.ThresholdDenom)
}

// Load parses command-line flags, then (unless -C pointed at nothing
// loadable) an ini config file, over DefaultConfig -- the same
// two-stage precedence lnd.go's loadConfig applies: flags override
// file, file overrides built-in defaults.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	preCfg := cfg
	parser := flags.NewParser(&preCfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if preCfg.ConfigFile != "" {
		if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	// Re-apply command-line flags so they take precedence over
	// anything the ini file set.
	if _, err := flags.NewParser(&preCfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}

	if err := preCfg.validate(); err != nil {
		return nil, err
	}

	return &preCfg, nil
}

func (c *Config) validate() error {
	if c.MaxInbound < 0 || c.MaxOutbound < 0 {
		return fmt.Errorf("config: maxinbound/maxoutbound must be non-negative")
	}
	if c.MinOutbound > c.MaxOutbound {
		return fmt.Errorf("config: minoutbound cannot exceed maxoutbound")
	}
	if c.ThresholdDenom <= 0 || c.ThresholdNum <= 0 || c.ThresholdNum > c.ThresholdDenom {
		return fmt.Errorf("config: threshold must satisfy 0 < num <= denom")
	}
	if c.RedundancyFactor <= 0 {
		return fmt.Errorf("config: redundancyfactor must be positive")
	}
	return nil
}

// AllocationPolicies parses ProtocolsAllocation's repeated "id:kind[:pct]"
// strings into peer.AllocationPolicy values.
func (c Config) AllocationPolicies() ([]peer.AllocationPolicy, error) {
	policies := make([]peer.AllocationPolicy, 0, len(c.ProtocolsAllocation))
	for _, raw := range c.ProtocolsAllocation {
		parts := strings.Split(raw, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("config: malformed protocolalloc %q, want id:kind[:pct]", raw)
		}
		id, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("config: malformed protocol id in %q: %w", raw, err)
		}

		policy := peer.AllocationPolicy{Protocol: wire.ProtocolId(id)}
		switch strings.ToLower(parts[1]) {
		case "zero":
			policy.Kind = peer.Zero
		case "max":
			policy.Kind = peer.Max
		case "bounded":
			if len(parts) != 3 {
				return nil, fmt.Errorf("config: bounded policy %q requires a pct", raw)
			}
			pct, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("config: malformed pct in %q: %w", raw, err)
			}
			policy.Kind = peer.Bounded
			policy.Pct = pct
		default:
			return nil, fmt.Errorf("config: unknown allocation kind %q in %q", parts[1], raw)
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

// PeerManagerConfig projects the peer-manager-relevant subset of Config
// into a peer.Config, the shape peer.NewManager consumes.
func (c Config) PeerManagerConfig() (peer.Config, error) {
	policies, err := c.AllocationPolicies()
	if err != nil {
		return peer.Config{}, err
	}
	return peer.Config{
		MinKnownPeers:            c.MinKnownPeers,
		MinOutbound:              c.MinOutbound,
		MaxInbound:               c.MaxInbound,
		MaxOutbound:              c.MaxOutbound,
		MinAcceptableReputation:  c.MinAcceptableReputation,
		MinReputation:            c.MinReputation,
		ConnResetOutboundBackoff: c.ConnResetOutboundBackoff,
		ConnAllocInterval:        c.ConnAllocInterval,
		ProtAllocInterval:        c.ProtAllocInterval,
		ProtocolsAllocation:      policies,
	}, nil
}
