package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/lockstep/pkg/lockstep"
)

func newTestSession(t *testing.T) *lockstep.Session {
	t.Helper()
	return lockstep.NewSession(lockstep.Config{
		LocalID:               1,
		InitialFrame:          0,
		Peers:                 []lockstep.PeerID{2, 3},
		RetransmissionTimeout: 0,
	}, nil)
}

func TestStatusHandlerReportsEveryPeer(t *testing.T) {
	session := newTestSession(t)
	rq, ok := session.ReceiveQueue(2)
	require.True(t, ok)
	rq.Push([]lockstep.FrameInput{lockstep.NewFrameInput(0, []byte("a"))})

	handler := Handler(session, nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var out []PeerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)

	byPeer := make(map[string]PeerStatus, len(out))
	for _, st := range out {
		byPeer[st.Peer] = st
	}
	assert.EqualValues(t, 0, byPeer[lockstep.PeerID(2).String()].LastInOrder)
	assert.EqualValues(t, -1, byPeer[lockstep.PeerID(3).String()].LastInOrder)
}

func TestHandlerOmitsMetricsRouteWhenRegistryNil(t *testing.T) {
	session := newTestSession(t)
	handler := Handler(session, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
