package lockstepcfg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	raw := `{
		"local_id": 1,
		"listen_addr": ":9000",
		"peer_addrs": {"2": "127.0.0.1:9001"}
	}`
	cfg, err := Load(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.BufferSizeHint)
	assert.Equal(t, 60, cfg.TickRateHz)
	assert.Equal(t, 150*time.Millisecond, cfg.RetransmissionTimeout)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:9001", cfg.PeerAddrs[2])
}

func TestLoadOverridesDefaults(t *testing.T) {
	raw := `{
		"local_id": 1,
		"listen_addr": ":9000",
		"peer_addrs": {"2": "127.0.0.1:9001"},
		"tick_rate_hz": 30
	}`
	cfg, err := Load(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.TickRateHz)
}

func TestValidateRejectsEmptyPeers(t *testing.T) {
	cfg := Config{ListenAddr: ":9000", RetransmissionTimeout: time.Second}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsSelfReference(t *testing.T) {
	cfg := Config{
		LocalID:               1,
		ListenAddr:            ":9000",
		RetransmissionTimeout: time.Second,
		PeerAddrs:             map[uint32]string{1: "127.0.0.1:9001"},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateAccepts(t *testing.T) {
	cfg := Config{
		LocalID:               1,
		ListenAddr:            ":9000",
		RetransmissionTimeout: time.Second,
		PeerAddrs:             map[uint32]string{2: "127.0.0.1:9001", 3: "127.0.0.1:9002"},
	}
	require.NoError(t, cfg.Validate())
	assert.ElementsMatch(t, cfg.Peers(), cfg.SessionConfig().Peers)
}

func TestTickIntervalFloor(t *testing.T) {
	cfg := Config{TickRateHz: 100000}
	assert.Equal(t, MinTickInterval, cfg.TickInterval())

	cfg = Config{TickRateHz: 0}
	assert.Equal(t, MinTickInterval, cfg.TickInterval())

	cfg = Config{TickRateHz: 60}
	assert.Equal(t, time.Second/60, cfg.TickInterval())
}
