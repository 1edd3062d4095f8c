package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/source"
	"github.com/glowe/dartviz/pkg/core"
	"github.com/glowe/dartviz/pkg/streaming"
)

var _ source.Source = (*Source)(nil)

type recordingEmitter struct {
	mu     sync.Mutex
	events []dispatcher.Event
	err    error
}

func (r *recordingEmitter) Dispatch(e dispatcher.Event) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.events = append(r.events, e)
	return dispatcher.ResultPosted, nil
}

func (r *recordingEmitter) all() []dispatcher.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]dispatcher.Event, len(r.events))
	copy(cp, r.events)
	return cp
}

// feedServer upgrades every request, sends the given frames and collects
// whatever the client writes back.
type feedServer struct {
	*httptest.Server
	mu      sync.Mutex
	acks    []streaming.AckMessage
	secrets []string
}

func newFeedServer(t *testing.T, frames ...[]byte) *feedServer {
	t.Helper()
	fs := &feedServer{}
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.secrets = append(fs.secrets, r.URL.Query().Get("secret"))
		fs.mu.Unlock()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for _, f := range frames {
			if err := c.WriteMessage(ws.TextMessage, f); err != nil {
				return
			}
		}
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var ack streaming.AckMessage
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			fs.mu.Lock()
			fs.acks = append(fs.acks, ack)
			fs.mu.Unlock()
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) ackedTypes() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, 0, len(fs.acks))
	for _, a := range fs.acks {
		out = append(out, a.For)
	}
	return out
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func frame(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	data, err := streaming.Marshal(msgType, payload)
	require.NoError(t, err)
	return data
}

func runSource(t *testing.T, s *Source) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		errCh <- s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return cancel, errCh
}

func TestRun_DispatchesAndAcks(t *testing.T) {
	throw := core.Throw{PlayerID: core.Int(1), Score: core.Int(20), Multiplier: core.Int(3)}
	fs := newFeedServer(t,
		frame(t, streaming.TypeLastThrow, throw),
		frame(t, streaming.TypeUndo, nil),
	)
	emit := &recordingEmitter{}
	s := New(Config{URL: wsURL(fs.Server), Secret: "s3cret"}, emit, nil)
	runSource(t, s)

	require.Eventually(t, func() bool {
		return len(fs.ackedTypes()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{streaming.TypeLastThrow, streaming.TypeUndo}, fs.ackedTypes())

	events := emit.all()
	require.Len(t, events, 2)
	assert.Equal(t, streaming.TypeLastThrow, events[0].Command)
	assert.Equal(t, Name, events[0].Source)
	got, ok := events[0].Payload.(*core.Throw)
	require.True(t, ok)
	assert.Equal(t, throw.Key(), got.Key())
	assert.Equal(t, streaming.TypeUndo, events[1].Command)
	assert.Nil(t, events[1].Payload)

	fs.mu.Lock()
	assert.Equal(t, "s3cret", fs.secrets[0])
	fs.mu.Unlock()
}

func TestRun_SkipsUndecodableMessages(t *testing.T) {
	fs := newFeedServer(t,
		[]byte("not json"),
		frame(t, "bogus", nil),
		frame(t, streaming.TypeClear, nil),
	)
	emit := &recordingEmitter{}
	s := New(Config{URL: wsURL(fs.Server)}, emit, nil)
	runSource(t, s)

	require.Eventually(t, func() bool {
		return len(fs.ackedTypes()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events := emit.all()
	require.Len(t, events, 1)
	assert.Equal(t, streaming.TypeClear, events[0].Command)
}

func TestRun_NoAckWhenDispatchFails(t *testing.T) {
	fs := newFeedServer(t,
		frame(t, streaming.TypeClear, nil),
	)
	emit := &recordingEmitter{err: errors.New("boom")}
	s := New(Config{URL: wsURL(fs.Server)}, emit, nil)
	runSource(t, s)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, fs.ackedTypes())
}

func TestRun_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if conns.Add(1) == 1 {
			// Drop the first connection straight away.
			return
		}
		data, _ := streaming.Marshal(streaming.TypeClear, nil)
		_ = c.WriteMessage(ws.TextMessage, data)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	emit := &recordingEmitter{}
	s := New(Config{URL: wsURL(srv), Backoff: 10 * time.Millisecond}, emit, nil)
	runSource(t, s)

	require.Eventually(t, func() bool {
		return len(emit.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestRun_GivesUpAfterMaxReconnect(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	s := New(Config{URL: url, Backoff: time.Millisecond, MaxReconnect: 3}, &recordingEmitter{}, nil)
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
}

func TestRun_InvalidURL(t *testing.T) {
	s := New(Config{URL: "://bad", MaxReconnect: 1}, &recordingEmitter{}, nil)
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid websocket URL")
}

func TestRun_StopsOnCancel(t *testing.T) {
	fs := newFeedServer(t)
	s := New(Config{URL: wsURL(fs.Server)}, &recordingEmitter{}, nil)
	cancel, errCh := runSource(t, s)

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := New(Config{URL: "ws://127.0.0.1:1"}, &recordingEmitter{}, nil)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Run(context.Background()))
}
