package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// stubBus implements domain.SignalBus with canned stream entries and records
// every replay read so tests can assert on the requested ranges.
type stubBus struct {
	mu      sync.Mutex
	entries map[string][]domain.StreamMessage
	errs    map[string]error
	reads   []streamReadCall
}

type streamReadCall struct {
	stream string
	lastID string
	count  int
}

func (b *stubBus) Publish(context.Context, string, []byte) error { return nil }

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *stubBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *stubBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads = append(b.reads, streamReadCall{stream: stream, lastID: lastID, count: count})
	if err := b.errs[stream]; err != nil {
		return nil, err
	}
	return b.entries[stream], nil
}

func (b *stubBus) readCalls() []streamReadCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]streamReadCall(nil), b.reads...)
}

// replayEnvelope mirrors the frame handleReplay sends to clients.
type replayEnvelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client with a buffered send channel and the default
// subscriptions, without a live connection behind it.
func newTestClient(h *Hub) *client {
	c := &client{
		hub:  h,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(defaultChannels)),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}
	return c
}

func TestOriginChecker(t *testing.T) {
	cases := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://a.test"}, "", true},
		{"empty allow list", nil, "http://anywhere.test", true},
		{"wildcard", []string{"*"}, "http://anywhere.test", true},
		{"exact match", []string{"http://a.test"}, "http://a.test", true},
		{"case insensitive", []string{"http://A.Test"}, "http://a.test", true},
		{"mismatch", []string{"http://a.test"}, "http://b.test", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check := originChecker(tc.allowed)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.want, check(req))
		})
	}
}

func TestIsSubscribed_WildcardPrefix(t *testing.T) {
	h := NewHub(&stubBus{}, discardLogger(), Config{})
	c := newTestClient(h)
	c.subs = map[string]bool{domain.ChannelScans: true, "opp*": true}

	assert.True(t, c.isSubscribed(domain.ChannelScans))
	assert.True(t, c.isSubscribed(domain.ChannelOpportunities), "opp* should match by prefix")
	assert.False(t, c.isSubscribed(domain.ChannelErrors))
}

func TestHandleSubscription_ManagesChannelSet(t *testing.T) {
	h := NewHub(&stubBus{}, discardLogger(), Config{})
	c := newTestClient(h)

	c.handleSubscription(subscribeMsg{
		Action:   "unsubscribe",
		Channels: []string{domain.ChannelErrors, domain.ChannelDiscovery},
	})
	assert.False(t, c.isSubscribed(domain.ChannelErrors))
	assert.False(t, c.isSubscribed(domain.ChannelDiscovery))
	assert.True(t, c.isSubscribed(domain.ChannelScans))

	c.handleSubscription(subscribeMsg{
		Action:   "subscribe",
		Channels: []string{domain.ChannelErrors},
	})
	assert.True(t, c.isSubscribed(domain.ChannelErrors))
}

func TestSendInitialStatus(t *testing.T) {
	h := NewHub(&stubBus{}, discardLogger(), Config{
		Mode:      "Serve",
		StartedAt: time.Now().Add(-90 * time.Second),
	})
	c := newTestClient(h)

	c.sendInitialStatus()

	var env struct {
		Type    string `json:"type"`
		Payload struct {
			Mode          string `json:"mode"`
			Connected     bool   `json:"connected"`
			UptimeSeconds int64  `json:"uptime_seconds"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, "status", env.Type)
	assert.Equal(t, "serve", env.Payload.Mode, "mode is lowercased at construction")
	assert.True(t, env.Payload.Connected)
	assert.GreaterOrEqual(t, env.Payload.UptimeSeconds, int64(90))
}

func TestHandleReplay_DefaultsToStreamedChannels(t *testing.T) {
	bus := &stubBus{entries: map[string][]domain.StreamMessage{
		domain.ChannelOpportunities: {
			{ID: "1-0", Payload: []byte(`{"seq":1}`)},
			{ID: "2-0", Payload: []byte(`{"seq":2}`)},
		},
		domain.ChannelScans: {
			{ID: "3-0", Payload: []byte(`{"seq":3}`)},
		},
	}}
	h := NewHub(bus, discardLogger(), Config{})
	c := newTestClient(h)

	c.handleReplay(subscribeMsg{Action: "replay"})

	calls := bus.readCalls()
	require.Len(t, calls, len(streamedChannels))
	for i, call := range calls {
		assert.Equal(t, streamedChannels[i], call.stream)
		assert.Equal(t, "0", call.lastID, "empty last_id reads from the start")
		assert.Equal(t, replayCount, call.count)
	}

	var got []replayEnvelope
	for len(c.send) > 0 {
		var env replayEnvelope
		require.NoError(t, json.Unmarshal(<-c.send, &env))
		got = append(got, env)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "replay", got[0].Type)
	assert.Equal(t, domain.ChannelOpportunities, got[0].Channel)
	assert.Equal(t, "1-0", got[0].ID)
	assert.JSONEq(t, `{"seq":1}`, string(got[0].Payload))
	assert.Equal(t, domain.ChannelScans, got[2].Channel)
	assert.Equal(t, "3-0", got[2].ID)
}

func TestHandleReplay_ExplicitChannelAndLastID(t *testing.T) {
	bus := &stubBus{entries: map[string][]domain.StreamMessage{
		domain.ChannelScans: {{ID: "7-0", Payload: []byte(`{"seq":7}`)}},
	}}
	h := NewHub(bus, discardLogger(), Config{})
	c := newTestClient(h)

	c.handleReplay(subscribeMsg{
		Action:   "replay",
		Channels: []string{domain.ChannelScans},
		LastID:   "5-0",
	})

	calls := bus.readCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.ChannelScans, calls[0].stream)
	assert.Equal(t, "5-0", calls[0].lastID)
	require.Len(t, c.send, 1)
}

func TestHandleReplay_BusErrorSkipsChannel(t *testing.T) {
	bus := &stubBus{
		errs: map[string]error{domain.ChannelOpportunities: errors.New("redis down")},
		entries: map[string][]domain.StreamMessage{
			domain.ChannelScans: {{ID: "1-0", Payload: []byte(`{"ok":true}`)}},
		},
	}
	h := NewHub(bus, discardLogger(), Config{})
	c := newTestClient(h)

	c.handleReplay(subscribeMsg{Action: "replay"})

	require.Len(t, c.send, 1)
	var env replayEnvelope
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, domain.ChannelScans, env.Channel)
}

func TestRun_BroadcastRoutesBySubscription(t *testing.T) {
	h := NewHub(&stubBus{}, discardLogger(), Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	sub := newTestClient(h)
	other := newTestClient(h)
	other.subs = map[string]bool{domain.ChannelErrors: true}

	h.register <- sub
	h.register <- other

	h.broadcast <- broadcastMsg{channel: domain.ChannelScans, data: []byte(`{"n":1}`)}

	select {
	case msg := <-sub.send:
		assert.JSONEq(t, `{"n":1}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("subscribed client got no broadcast")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Shutdown closes the send channels, and the unsubscribed client must
	// not have received anything first.
	_, open := <-other.send
	assert.False(t, open)
	_, open = <-sub.send
	assert.False(t, open)
}

func TestHandleWS_StatusAndReplayOverWire(t *testing.T) {
	bus := &stubBus{entries: map[string][]domain.StreamMessage{
		domain.ChannelScans: {{ID: "4-2", Payload: []byte(`{"pairs_scanned":12}`)}},
	}}
	h := NewHub(bus, discardLogger(), Config{Mode: "full"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// The first frame is the connection status envelope.
	var status struct {
		Type    string `json:"type"`
		Payload struct {
			Mode      string `json:"mode"`
			Connected bool   `json:"connected"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, "status", status.Type)
	assert.Equal(t, "full", status.Payload.Mode)
	assert.True(t, status.Payload.Connected)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":   "replay",
		"channels": []string{domain.ChannelScans},
		"last_id":  "0",
	}))

	var replay replayEnvelope
	require.NoError(t, conn.ReadJSON(&replay))
	assert.Equal(t, "replay", replay.Type)
	assert.Equal(t, domain.ChannelScans, replay.Channel)
	assert.Equal(t, "4-2", replay.ID)
	assert.JSONEq(t, `{"pairs_scanned":12}`, string(replay.Payload))
}
