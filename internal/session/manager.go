package session

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the session tables. bySession holds every live accepted
// connection exactly once; byUser maps a non-zero user id to the set of
// its session ids and never keeps an empty set. One mutex guards both
// tables and the id counter; snapshots copy references out under the lock
// and delivery always happens after release.
type Manager struct {
	mu        sync.Mutex
	nextID    uint64
	bySession map[uint64]*Session
	byUser    map[uint32]map[uint64]struct{}

	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		nextID:    1,
		bySession: make(map[uint64]*Session),
		byUser:    make(map[uint32]map[uint64]struct{}),
		logger:    logger,
	}
}

// Create registers a new session for conn with identity (0,0). The
// returned session is live and addressable by broadcast until the client
// claims an identity.
func (m *Manager) Create(conn net.Conn) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	s := &Session{
		id:   id,
		name: fmt.Sprintf("Client-%d", id),
		conn: conn,
	}
	s.alive.Store(true)
	m.bySession[id] = s

	m.logger.Debug("session created",
		zap.Uint64("session_id", id),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	return s
}

// SetIdentity rewrites the session's (user, group) identity and keeps the
// byUser index consistent: the old user entry is dropped (pruning an
// emptied set) and the new user registered. A zero user id is accepted and
// leaves the session unindexed. Returns false for an unknown session.
func (m *Manager) SetIdentity(id uint64, userID, groupID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.bySession[id]
	if !ok {
		return false
	}

	if s.userID != 0 {
		m.unindexLocked(id, s.userID)
	}
	s.userID = userID
	s.groupID = groupID
	if userID != 0 {
		set, ok := m.byUser[userID]
		if !ok {
			set = make(map[uint64]struct{})
			m.byUser[userID] = set
		}
		set[id] = struct{}{}
	}

	m.logger.Debug("session identity updated",
		zap.Uint64("session_id", id),
		zap.Uint32("user_id", userID),
		zap.Uint32("group_id", groupID),
	)
	return true
}

// Identity returns the session's current (user, group) pair.
func (m *Manager) Identity(id uint64) (userID, groupID uint32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySession[id]
	if !ok {
		return 0, 0, false
	}
	return s.userID, s.groupID, true
}

// Destroy removes the session from both tables, marks it dead and closes
// its connection. Idempotent.
func (m *Manager) Destroy(id uint64) {
	m.mu.Lock()
	s, ok := m.bySession[id]
	if ok {
		if s.userID != 0 {
			m.unindexLocked(id, s.userID)
		}
		delete(m.bySession, id)
	}
	m.mu.Unlock()

	if ok {
		s.close()
		m.logger.Debug("session destroyed", zap.Uint64("session_id", id))
	}
}

func (m *Manager) unindexLocked(id uint64, userID uint32) {
	set, ok := m.byUser[userID]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.byUser, userID)
	}
}

// SnapshotAll returns every live session.
func (m *Manager) SnapshotAll() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.bySession))
	for _, s := range m.bySession {
		out = append(out, s)
	}
	return out
}

// SnapshotUser returns the sessions registered under userID.
func (m *Manager) SnapshotUser(userID uint32) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for id := range m.byUser[userID] {
		if s, ok := m.bySession[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// SnapshotGroup returns the sessions whose identity carries groupID.
func (m *Manager) SnapshotGroup(groupID uint32) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.bySession {
		if s.groupID == groupID {
			out = append(out, s)
		}
	}
	return out
}

// SnapshotUserGroup returns the sessions matching both ids.
func (m *Manager) SnapshotUserGroup(userID, groupID uint32) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for id := range m.byUser[userID] {
		if s, ok := m.bySession[id]; ok && s.groupID == groupID {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySession)
}

// UserSessionIDs returns the byUser entry for userID, nil when absent.
func (m *Manager) UserSessionIDs(userID uint32) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// CloseAll destroys every session. Used on server shutdown.
func (m *Manager) CloseAll() {
	for _, s := range m.SnapshotAll() {
		m.Destroy(s.ID())
	}
}
