package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	e := New(SplitFulfilled, "req-1", map[string]int{"progress": 100})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, SplitFulfilled, e.Type)
	assert.Equal(t, "req-1", e.Subject)
	assert.WithinDuration(t, time.Now(), e.OccurredAt, time.Second)
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &recorder{}
	failing := &recorder{err: boom}

	err := Multi{failing, nil, ok, Noop{}}.Publish(context.Background(), New(PlanDue, "p1", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "splitledger.split.fulfilled", Subject("splitledger", SplitFulfilled))
	assert.Equal(t, "plan.due", Subject("", PlanDue))
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "splitledger", 200*time.Millisecond, testLogger())
	assert.Error(t, err)
}

func dialHub(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversMatchingEvents(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()

	conn := dialHub(t, hub, "/?types=split.")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, New(PlanDue, "p1", nil)))
	require.NoError(t, hub.Publish(ctx, New(SplitFulfilled, "req-1", nil)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, SplitFulfilled, got.Type)
	assert.Equal(t, "req-1", got.Subject)
}

func TestHub_SubjectFilter(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()

	conn := dialHub(t, hub, "/?subject=req-2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, New(SplitLinePaid, "req-1", nil)))
	require.NoError(t, hub.Publish(ctx, New(SplitLinePaid, "req-2", nil)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "req-2", got.Subject)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()

	conn := dialHub(t, hub, "/")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientWants(t *testing.T) {
	c := &client{types: []string{"split.", "plan.due"}}
	assert.True(t, c.wants(Event{Type: SplitRejected}))
	assert.True(t, c.wants(Event{Type: PlanDue}))
	assert.False(t, c.wants(Event{Type: PlanCreated}))

	all := &client{}
	assert.True(t, all.wants(Event{Type: DAOStatusChanged}))
}
