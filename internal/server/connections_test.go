package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Most tests run without real sockets: binding a nil conn creates the
// session in the Absent state, which is all the lifecycle logic needs.
// Queue behavior uses a real socket from dialTestConn.

func newTestCM(grace time.Duration) *ConnectionManager {
	return NewConnectionManager(zap.NewNop(), 30*time.Second, grace)
}

func TestBind_CreatesStableSession(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(time.Minute)

	sess, reconnected, prev := cm.Bind("u1", "alice", nil)
	assert.NotEmpty(sess.ID)
	assert.False(reconnected)
	assert.Nil(prev)
	assert.False(sess.Live())

	// Same user binds again: same session, flagged as a reconnect
	// because the session had been Absent.
	again, reconnected, _ := cm.Bind("u1", "alice", nil)
	assert.Equal(sess.ID, again.ID)
	assert.True(reconnected)

	other, _, _ := cm.Bind("u2", "bob", nil)
	assert.NotEqual(sess.ID, other.ID)
}

func TestBind_LookupByUserAndSession(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(time.Minute)

	sess, _, _ := cm.Bind("u1", "alice", nil)

	byID, ok := cm.Get(sess.ID)
	assert.True(ok)
	assert.Equal(sess, byID)

	byUser, ok := cm.SessionForUser("u1")
	assert.True(ok)
	assert.Equal(sess.ID, byUser.ID)

	_, ok = cm.Get("missing")
	assert.False(ok)
	_, ok = cm.SessionForUser("missing")
	assert.False(ok)
}

func TestSend_DropsForAbsentSession(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(time.Minute)

	sess, _, _ := cm.Bind("u1", "alice", nil)

	// Must not panic or block.
	cm.Send(sess.ID, ServerMessage{Type: "Pong", Payload: struct{}{}})
	cm.Broadcast([]string{sess.ID, "missing"}, ServerMessage{Type: "Pong", Payload: struct{}{}})
	assert.False(sess.Live())
}

// dialTestConn returns a client socket whose server side accepts the
// upgrade and then never reads, so nothing drains what we write to it.
func dialTestConn(t *testing.T) *websocket.Conn {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func TestEnqueue_OverflowDropsSession(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(time.Minute)

	sess, _, _ := cm.Bind("u1", "alice", nil)
	conn := dialTestConn(t)

	// Hand the session a bound socket with an already-full queue and no
	// write loop draining it, so the next enqueue has nowhere to go.
	queue := make(chan []byte, outboundQueueSize)
	for i := 0; i < outboundQueueSize; i++ {
		queue <- []byte("{}")
	}
	sess.mu.Lock()
	sess.conn = conn
	sess.outbound = queue
	sess.absentSince = time.Time{}
	sess.mu.Unlock()

	cm.Send(sess.ID, ServerMessage{Type: "Pong", Payload: struct{}{}})

	// The overflow drops the socket and marks the session Absent; the
	// queued backlog is intact and the queue is closed.
	assert.False(sess.Live())
	count := 0
	for range queue {
		count++
	}
	assert.Equal(outboundQueueSize, count)

	// Further sends are silent no-ops against the Absent session.
	cm.Send(sess.ID, ServerMessage{Type: "Pong", Payload: struct{}{}})
	assert.False(sess.Live())
}

func TestCounts(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(time.Minute)

	cm.Bind("u1", "alice", nil)
	cm.Bind("u2", "bob", nil)

	stats := cm.Counts()
	assert.Equal(2, stats.Total)
	assert.Equal(0, stats.Active)
	assert.Equal(2, stats.Inactive)
	assert.Equal(0, cm.LiveCount())
}

func TestReap_ExpiresAbsentSessionsAfterGrace(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(0) // zero grace: absent sessions expire on first sweep

	var expired []string
	cm.OnExpired = func(sess *Session) {
		expired = append(expired, sess.ID)
	}

	sess, _, _ := cm.Bind("u1", "alice", nil)
	cm.reap()

	assert.Equal([]string{sess.ID}, expired)
	_, ok := cm.Get(sess.ID)
	assert.False(ok)
	_, ok = cm.SessionForUser("u1")
	assert.False(ok)
}

func TestReap_HonorsGraceFor(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(0)
	cm.GraceFor = func(*Session) time.Duration { return time.Hour }

	sess, _, _ := cm.Bind("u1", "alice", nil)
	cm.reap()

	// Still inside the hour-long grace window.
	_, ok := cm.Get(sess.ID)
	assert.True(ok)
}

func TestRemove(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(time.Minute)

	sess, _, _ := cm.Bind("u1", "alice", nil)
	cm.Remove(sess.ID)

	_, ok := cm.Get(sess.ID)
	assert.False(ok)

	// A fresh bind for the user builds a brand new session.
	fresh, reconnected, _ := cm.Bind("u1", "alice", nil)
	assert.NotEqual(sess.ID, fresh.ID)
	assert.False(reconnected)
}

func TestSessionContext(t *testing.T) {
	assert := assert.New(t)
	cm := newTestCM(time.Minute)

	sess, _, _ := cm.Bind("u1", "alice", nil)
	assert.Empty(sess.LobbyID())
	assert.Empty(sess.GameID())

	sess.setLobby("l1")
	sess.setGame("g1")
	assert.Equal("l1", sess.LobbyID())
	assert.Equal("g1", sess.GameID())

	// Context survives a rebind.
	again, _, _ := cm.Bind("u1", "alice", nil)
	assert.Equal("l1", again.LobbyID())
	assert.Equal("g1", again.GameID())
}
