// Package session 维护 token → 玩家会话表，支持断线重连
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/palemoky/battleship/internal/transport"
)

// ErrTokenInUse token 对应的会话正在对局中且连接仍然存活
var ErrTokenInUse = errors.New("session: token already in use by a live connection")

// Status 会话状态
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusReconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnected:
		return "reconnected"
	}
	return "unknown"
}

// PlayerSession 玩家会话
type PlayerSession struct {
	Token string

	mu             sync.RWMutex
	status         Status
	peer           *transport.Peer
	lastSeen       time.Time
	disconnectedAt time.Time
	matchID        string

	// 重连信号，只保留最新一次
	reconnectCh chan *transport.Peer
}

func newPlayerSession(token string, peer *transport.Peer) *PlayerSession {
	return &PlayerSession{
		Token:       token,
		status:      StatusConnected,
		peer:        peer,
		lastSeen:    time.Now(),
		reconnectCh: make(chan *transport.Peer, 1),
	}
}

// Status 当前状态
func (s *PlayerSession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Peer 当前绑定的连接
func (s *PlayerSession) Peer() *transport.Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

// LastSeen 最近一次活动时间
func (s *PlayerSession) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// DisconnectedAt 断线时间，未断线为零值
func (s *PlayerSession) DisconnectedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disconnectedAt
}

// MatchID 所在对局，空表示未在对局中
func (s *PlayerSession) MatchID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchID
}

// InMatch 是否在对局中
func (s *PlayerSession) InMatch() bool {
	return s.MatchID() != ""
}

// Touch 刷新活动时间
func (s *PlayerSession) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// SetMatch 记录所在对局
func (s *PlayerSession) SetMatch(matchID string) {
	s.mu.Lock()
	s.matchID = matchID
	s.mu.Unlock()
}

// ClearMatch 离开对局
func (s *PlayerSession) ClearMatch() {
	s.SetMatch("")
}

// MarkDisconnected 在 old 仍是当前连接时标记为断线；
// 若会话已被新连接接管则返回 false
func (s *PlayerSession) MarkDisconnected(old *transport.Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peer != old {
		return false
	}
	if s.status != StatusDisconnected {
		s.status = StatusDisconnected
		s.disconnectedAt = time.Now()
	}
	return true
}

// MarkConnected 重连流程完成后恢复为 connected
func (s *PlayerSession) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusConnected
	s.disconnectedAt = time.Time{}
	s.lastSeen = time.Now()
}

// Reconnected 新连接接管会话时收到信号
func (s *PlayerSession) Reconnected() <-chan *transport.Peer {
	return s.reconnectCh
}

// rebind 换绑到新连接并发出重连信号
func (s *PlayerSession) rebind(peer *transport.Peer) {
	s.mu.Lock()
	s.peer = peer
	s.status = StatusReconnected
	s.lastSeen = time.Now()
	s.mu.Unlock()

	// 对局尚未取走的上一条重连直接作废
	select {
	case stale := <-s.reconnectCh:
		stale.Close()
	default:
	}
	s.reconnectCh <- peer
}

// resumable 是否应把这次身份上报视为重连
func (s *PlayerSession) resumable() (resume bool, inUse bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.matchID == "" {
		return false, false
	}
	switch s.status {
	case StatusDisconnected, StatusReconnected:
		return true, false
	}
	// 对局尚未察觉旧连接已断开
	if s.peer == nil || !s.peer.Alive() {
		return true, false
	}
	return false, true
}

// Manager 会话管理器
type Manager struct {
	sessions map[string]*PlayerSession
	ttl      time.Duration
	mu       sync.RWMutex
}

// NewManager 创建会话管理器，ttl 为断线会话的保留时长
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*PlayerSession),
		ttl:      ttl,
	}
}

// Resume 尝试把 token 视为重连：对局中断线的会话被 peer 接管并返回 ok=true；
// 对局中且连接仍存活时返回 ErrTokenInUse；其余情况不做任何登记
func (m *Manager) Resume(token string, peer *transport.Peer) (sess *PlayerSession, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeLocked(token, peer)
}

func (m *Manager) resumeLocked(token string, peer *transport.Peer) (*PlayerSession, bool, error) {
	existing, ok := m.sessions[token]
	if !ok {
		return nil, false, nil
	}
	resume, inUse := existing.resumable()
	if inUse {
		return nil, false, ErrTokenInUse
	}
	if !resume {
		return nil, false, nil
	}
	existing.rebind(peer)
	log.Printf("🔄 会话 %s 重新连接 (%s)", token, peer.RemoteAddr())
	return existing, true, nil
}

// Identify 处理一次 "ID <token>"：
// 对局中断线的会话被新连接接管（resumed=true），否则登记新会话并替换旧记录
func (m *Manager) Identify(token string, peer *transport.Peer) (sess *PlayerSession, resumed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, resumed, err = m.resumeLocked(token, peer)
	if err != nil || resumed {
		return sess, resumed, err
	}

	sess = newPlayerSession(token, peer)
	m.sessions[token] = sess
	return sess, false, nil
}

// Get 查询会话
func (m *Manager) Get(token string) *PlayerSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[token]
}

// Remove 删除会话；仅当表中记录仍是 sess 时才删除
func (m *Manager) Remove(sess *PlayerSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[sess.Token]; ok && cur == sess {
		delete(m.sessions, sess.Token)
	}
}

// Len 会话数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup 清理过期会话：断线超过 ttl，或不在对局中且连接已关闭超过 ttl
func (m *Manager) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, s := range m.sessions {
		s.mu.RLock()
		stale := s.status == StatusDisconnected && now.Sub(s.disconnectedAt) > m.ttl
		idle := s.matchID == "" && (s.peer == nil || !s.peer.Alive()) && now.Sub(s.lastSeen) > m.ttl
		s.mu.RUnlock()

		if stale || idle {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// Run 定期清理过期会话，直到 ctx 取消
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Cleanup(now); n > 0 {
				log.Printf("🧹 清理过期会话 %d 个，剩余 %d", n, m.Len())
			}
		}
	}
}
