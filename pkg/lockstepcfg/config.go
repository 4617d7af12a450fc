// Package lockstepcfg loads the session-wide configuration enumerated in
// spec.md §6, plus the socket addressing a host application needs to
// actually open a transport.Socket and resolve peer destinations (left
// external by the core spec).
//
// Grounded on cmd/setup-node/commands/root.go's config-file-or-stdin
// pattern, with github.com/spf13/viper layered on top so a deployment can
// override any field via env var (LOCKSTEP_<FIELD>) without editing the
// JSON file; no command-line flags are bound. This is the way the
// teacher's viper dependency is meant
// to be used (see DESIGN.md: the teacher pulls in viper but never calls
// it from its own core networking code).
package lockstepcfg

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/viper"

	"github.com/skycoin/lockstep/pkg/lockstep"
)

// Config is the JSON/env/flag-overlaid configuration for one session.
type Config struct {
	// LocalID is this process's own peer id.
	LocalID lockstep.PeerID `mapstructure:"local_id"`
	// InitialFrame is the first frame number, identical across all peers.
	InitialFrame int64 `mapstructure:"initial_frame"`
	// PeerAddrs maps every remote peer id to its "host:port" UDP address.
	// The key set is Config.Peers (spec §6's peerIds).
	PeerAddrs map[uint32]string `mapstructure:"peer_addrs"`
	// BufferSizeHint is advisory only; see lockstep.ReceiveQueue.
	BufferSizeHint int `mapstructure:"buffer_size_hint"`
	// TickRateHz is the simulation's target tick rate, used only to
	// size the sender loop's scan interval (tickInterval = 1/TickRateHz,
	// capped below by MinTickInterval) unless overridden explicitly.
	TickRateHz int `mapstructure:"tick_rate_hz"`
	// RetransmissionTimeout is the RTO applied uniformly to every
	// outstanding frame.
	RetransmissionTimeout time.Duration `mapstructure:"retransmission_timeout"`
	// SocketReadTimeout bounds each blocking socket read so the read
	// loop can observe cancellation promptly.
	SocketReadTimeout time.Duration `mapstructure:"socket_read_timeout"`
	// KeepAliveInterval governs how often an otherwise-idle peer gets a
	// KeepAlive datagram. Zero disables keep-alives.
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	// ListenAddr is the local UDP bind address ("host:port" or ":port").
	ListenAddr string `mapstructure:"listen_addr"`
	// StatusAddr, if non-empty, is the HTTP address statusapi listens on.
	StatusAddr string `mapstructure:"status_addr"`
}

// MinTickInterval is the floor applied when deriving a sender-loop scan
// interval from TickRateHz, so a misconfigured high tick rate can't spin
// the loop into a busy-poll.
const MinTickInterval = 5 * time.Millisecond

// TickInterval derives the sender loop's scan interval from TickRateHz.
func (c Config) TickInterval() time.Duration {
	if c.TickRateHz <= 0 {
		return MinTickInterval
	}
	d := time.Second / time.Duration(c.TickRateHz)
	if d < MinTickInterval {
		return MinTickInterval
	}
	return d
}

// Peers returns the fixed remote peer set, derived from PeerAddrs' keys,
// for use as lockstep.Config.Peers.
func (c Config) Peers() []lockstep.PeerID {
	out := make([]lockstep.PeerID, 0, len(c.PeerAddrs))
	for id := range c.PeerAddrs {
		out = append(out, lockstep.PeerID(id))
	}
	return out
}

// Validate checks the invariants a session needs before it can start:
// a non-empty peer set, no self-reference in PeerAddrs, and a positive
// RTO.
func (c Config) Validate() error {
	if len(c.PeerAddrs) == 0 {
		return fmt.Errorf("lockstepcfg: peer_addrs must name at least one remote peer")
	}
	if _, self := c.PeerAddrs[uint32(c.LocalID)]; self {
		return fmt.Errorf("lockstepcfg: peer_addrs must not contain local_id %s", c.LocalID)
	}
	if c.RetransmissionTimeout <= 0 {
		return fmt.Errorf("lockstepcfg: retransmission_timeout must be positive")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("lockstepcfg: listen_addr is required")
	}
	return nil
}

// SessionConfig projects this Config down to the subset lockstep.Session
// actually needs.
func (c Config) SessionConfig() lockstep.Config {
	return lockstep.Config{
		LocalID:               c.LocalID,
		InitialFrame:          c.InitialFrame,
		Peers:                 c.Peers(),
		BufferSizeHint:        c.BufferSizeHint,
		TickRateHz:            c.TickRateHz,
		RetransmissionTimeout: c.RetransmissionTimeout,
		SocketReadTimeout:     c.SocketReadTimeout,
	}
}

// defaults applied before the config file/env/flags are read, following
// setup.Config's zero-value-means-unset convention.
func defaults(v *viper.Viper) {
	v.SetDefault("buffer_size_hint", 64)
	v.SetDefault("tick_rate_hz", 60)
	v.SetDefault("retransmission_timeout", 150*time.Millisecond)
	v.SetDefault("socket_read_timeout", 200*time.Millisecond)
	v.SetDefault("keep_alive_interval", 2*time.Second)
	v.SetDefault("initial_frame", 0)
}

// Load reads a JSON config file through r, with env vars prefixed
// LOCKSTEP_ (e.g. LOCKSTEP_LISTEN_ADDR) taking precedence over file
// values, following cmd/setup-node/commands/root.go's
// json.NewDecoder(rdr).Decode but layered through viper so a deployment
// can override any field without touching the file.
func Load(r io.Reader) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("lockstep")
	v.AutomaticEnv()
	defaults(v)

	if err := v.ReadConfig(r); err != nil {
		return Config{}, fmt.Errorf("lockstepcfg: reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("lockstepcfg: decoding config: %w", err)
	}
	return cfg, nil
}
