package server

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// outboundQueueSize bounds the per-session send queue. A consumer that
// falls this far behind gets disconnected rather than stalling the game
// loop that enqueued the message.
const outboundQueueSize = 64

// Session is the stable identity a user keeps across sockets. The
// session id doubles as the player id in lobbies and games; closing a
// socket marks the session Absent instead of destroying it.
type Session struct {
	ID       string
	UserID   string
	Username string

	mu          sync.Mutex
	conn        *websocket.Conn
	outbound    chan []byte
	absentSince time.Time
	lastSeen    time.Time
	lobbyID     string
	gameID      string
}

// Live reports whether a socket is currently bound.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Session) LobbyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobbyID
}

func (s *Session) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

func (s *Session) setLobby(id string) {
	s.mu.Lock()
	s.lobbyID = id
	s.mu.Unlock()
}

func (s *Session) setGame(id string) {
	s.mu.Lock()
	s.gameID = id
	s.mu.Unlock()
}

// ConnectionManager owns every session and the socket bound to it.
// GraceFor and OnExpired are wired by the server before the reaper
// starts: GraceFor decides how long an Absent session is retained,
// OnExpired runs after the session is removed.
type ConnectionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string

	log          *zap.Logger
	pingInterval time.Duration
	defaultGrace time.Duration

	GraceFor  func(*Session) time.Duration
	OnExpired func(*Session)
}

func NewConnectionManager(log *zap.Logger, pingInterval, defaultGrace time.Duration) *ConnectionManager {
	return &ConnectionManager{
		sessions:     make(map[string]*Session),
		byUser:       make(map[string]string),
		log:          log,
		pingInterval: pingInterval,
		defaultGrace: defaultGrace,
	}
}

// Bind attaches a socket to the user's session, creating the session on
// first contact. When the user already holds a live socket the new one
// wins and the previous conn is returned for the caller to close.
// reconnected is true when the session was Absent, which is the cue to
// replay state and announce PlayerReconnected.
func (cm *ConnectionManager) Bind(userID, username string, conn *websocket.Conn) (sess *Session, reconnected bool, prev *websocket.Conn) {
	cm.mu.Lock()
	if sid, ok := cm.byUser[userID]; ok {
		sess = cm.sessions[sid]
	}
	if sess == nil {
		sess = &Session{
			ID:       uuid.NewString(),
			UserID:   userID,
			Username: username,
			lastSeen: time.Now(),
		}
		cm.sessions[sess.ID] = sess
		cm.byUser[userID] = sess.ID
	}
	cm.mu.Unlock()

	sess.mu.Lock()
	prev = sess.conn
	oldQueue := sess.outbound
	reconnected = prev == nil && !sess.absentSince.IsZero()
	sess.conn = conn
	sess.absentSince = time.Time{}
	sess.lastSeen = time.Now()
	if conn != nil {
		sess.outbound = make(chan []byte, outboundQueueSize)
		go cm.writeLoop(sess, conn, sess.outbound)
	} else {
		// A nil socket leaves the session Absent from the start.
		sess.outbound = nil
		sess.absentSince = time.Now()
	}
	sess.mu.Unlock()

	if oldQueue != nil {
		close(oldQueue)
	}
	return sess, reconnected, prev
}

func (cm *ConnectionManager) writeLoop(sess *Session, conn *websocket.Conn, queue chan []byte) {
	for data := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			cm.log.Debug("socket write failed",
				zap.String("session_id", sess.ID),
				zap.Error(err))
			cm.Detach(sess, conn)
			return
		}
	}
}

// Detach marks the session Absent if the given conn is still the bound
// one. Stale conns (already superseded by a newer Bind) are ignored.
func (cm *ConnectionManager) Detach(sess *Session, conn *websocket.Conn) bool {
	if conn == nil {
		return false
	}
	sess.mu.Lock()
	if sess.conn != conn {
		sess.mu.Unlock()
		return false
	}
	queue := sess.outbound
	sess.conn = nil
	sess.outbound = nil
	sess.absentSince = time.Now()
	sess.mu.Unlock()

	if queue != nil {
		close(queue)
	}
	_ = conn.Close(websocket.StatusGoingAway, "connection closed")
	cm.log.Info("session absent", zap.String("session_id", sess.ID))
	return true
}

// Send marshals the message and enqueues it for the session. Absent
// sessions drop the message; a full queue disconnects the session so
// the caller never blocks.
func (cm *ConnectionManager) Send(sessionID string, msg ServerMessage) {
	sess, ok := cm.Get(sessionID)
	if !ok {
		return
	}
	data, err := marshalMessage(msg)
	if err != nil {
		cm.log.Error("marshal outbound message",
			zap.String("type", msg.Type), zap.Error(err))
		return
	}
	cm.enqueue(sess, data)
}

// Broadcast marshals once and enqueues for every listed session.
func (cm *ConnectionManager) Broadcast(sessionIDs []string, msg ServerMessage) {
	data, err := marshalMessage(msg)
	if err != nil {
		cm.log.Error("marshal outbound message",
			zap.String("type", msg.Type), zap.Error(err))
		return
	}
	for _, id := range sessionIDs {
		if sess, ok := cm.Get(id); ok {
			cm.enqueue(sess, data)
		}
	}
}

func (cm *ConnectionManager) enqueue(sess *Session, data []byte) {
	sess.mu.Lock()
	if sess.conn == nil || sess.outbound == nil {
		sess.mu.Unlock()
		return
	}
	select {
	case sess.outbound <- data:
		sess.mu.Unlock()
	default:
		conn := sess.conn
		queue := sess.outbound
		sess.conn = nil
		sess.outbound = nil
		sess.absentSince = time.Now()
		sess.mu.Unlock()

		close(queue)
		_ = conn.Close(websocket.StatusPolicyViolation, "outbound queue overflow")
		cm.log.Warn("session dropped, outbound queue overflow",
			zap.String("session_id", sess.ID))
	}
}

func (cm *ConnectionManager) Get(sessionID string) (*Session, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	sess, ok := cm.sessions[sessionID]
	return sess, ok
}

func (cm *ConnectionManager) SessionForUser(userID string) (*Session, bool) {
	cm.mu.RLock()
	sid, ok := cm.byUser[userID]
	var sess *Session
	if ok {
		sess = cm.sessions[sid]
	}
	cm.mu.RUnlock()
	return sess, sess != nil
}

// Touch records inbound activity for the idle reaper.
func (cm *ConnectionManager) Touch(sessionID string) {
	if sess, ok := cm.Get(sessionID); ok {
		sess.mu.Lock()
		sess.lastSeen = time.Now()
		sess.mu.Unlock()
	}
}

// Remove drops the session entirely. Used for grace expiry.
func (cm *ConnectionManager) Remove(sessionID string) {
	cm.mu.Lock()
	sess, ok := cm.sessions[sessionID]
	if ok {
		delete(cm.sessions, sessionID)
		delete(cm.byUser, sess.UserID)
	}
	cm.mu.Unlock()
}

func (cm *ConnectionManager) LiveCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	count := 0
	for _, sess := range cm.sessions {
		if sess.Live() {
			count++
		}
	}
	return count
}

func (cm *ConnectionManager) Counts() ConnStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	stats := ConnStats{Total: len(cm.sessions)}
	for _, sess := range cm.sessions {
		if sess.Live() {
			stats.Active++
		} else {
			stats.Inactive++
		}
	}
	return stats
}

// RunReaper disconnects idle sockets and destroys Absent sessions whose
// grace window has run out. Blocks until stop closes.
func (cm *ConnectionManager) RunReaper(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cm.reap()
		}
	}
}

func (cm *ConnectionManager) reap() {
	now := time.Now()
	idleCutoff := now.Add(-2 * cm.pingInterval)

	cm.mu.RLock()
	all := make([]*Session, 0, len(cm.sessions))
	for _, sess := range cm.sessions {
		all = append(all, sess)
	}
	cm.mu.RUnlock()

	var expired []*Session
	for _, sess := range all {
		sess.mu.Lock()
		conn := sess.conn
		idle := conn != nil && sess.lastSeen.Before(idleCutoff)
		absentSince := sess.absentSince
		sess.mu.Unlock()

		if idle {
			cm.log.Info("disconnecting idle session",
				zap.String("session_id", sess.ID))
			cm.Detach(sess, conn)
			continue
		}
		if conn == nil && !absentSince.IsZero() {
			grace := cm.defaultGrace
			if cm.GraceFor != nil {
				grace = cm.GraceFor(sess)
			}
			if now.Sub(absentSince) >= grace {
				expired = append(expired, sess)
			}
		}
	}

	for _, sess := range expired {
		cm.Remove(sess.ID)
		cm.log.Info("session expired",
			zap.String("session_id", sess.ID),
			zap.String("username", sess.Username))
		if cm.OnExpired != nil {
			cm.OnExpired(sess)
		}
	}
}

// CloseAll tears down every live socket, used during shutdown.
func (cm *ConnectionManager) CloseAll(reason string) {
	cm.mu.RLock()
	all := make([]*Session, 0, len(cm.sessions))
	for _, sess := range cm.sessions {
		all = append(all, sess)
	}
	cm.mu.RUnlock()

	for _, sess := range all {
		sess.mu.Lock()
		conn := sess.conn
		sess.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusGoingAway, reason)
			cm.Detach(sess, conn)
		}
	}
}
