package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/palemoky/battleship/internal/apperrors"
	"github.com/palemoky/battleship/internal/config"
	"github.com/palemoky/battleship/internal/logger"
	"github.com/palemoky/battleship/internal/network/server/session"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/transport"
)

// Matcher 匹配调度：就绪队列、观众列表与对局槽位
type Matcher struct {
	opts       Options
	cfg        config.MatchConfig
	sessions   *session.Manager
	spectators *Broadcaster
	stats      StatsRecorder

	mu     sync.Mutex
	ready  []*Seat
	active map[string]*Match

	wake      chan struct{}
	promoting atomic.Bool
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// NewMatcher 创建匹配器；stats 可为 nil
func NewMatcher(opts Options, cfg config.MatchConfig, sessions *session.Manager, stats StatsRecorder) *Matcher {
	opts.withDefaults()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.ScheduleIntervalMS <= 0 {
		cfg.ScheduleIntervalMS = 200
	}
	if cfg.QueueNotifyInterval <= 0 {
		cfg.QueueNotifyInterval = 10
	}
	if cfg.IdentifyTimeout <= 0 {
		cfg.IdentifyTimeout = 10
	}
	if cfg.PromotionTimeout <= 0 {
		cfg.PromotionTimeout = 10
	}
	return &Matcher{
		opts:       opts,
		cfg:        cfg,
		sessions:   sessions,
		spectators: NewBroadcaster(opts.Legacy),
		stats:      stats,
		active:     make(map[string]*Match),
		wake:       make(chan struct{}, 1),
	}
}

// Spectators 观众广播器
func (m *Matcher) Spectators() *Broadcaster {
	return m.spectators
}

func (m *Matcher) send(peer *transport.Peer, t protocol.PacketType, payload string) {
	_ = peer.Send(protocol.Format(t, payload, !m.opts.Legacy))
}

func (m *Matcher) reject(peer *transport.Peer, err error) {
	m.send(peer, protocol.TypeResult, protocol.ResultInvalid)
	m.send(peer, protocol.TypeMessage, err.Error())
	peer.Close()
}

// Handle 处理新连接：身份识别后作为重连、玩家或观众接入；不阻塞调用方太久
func (m *Matcher) Handle(ctx context.Context, peer *transport.Peer) {
	token, err := readIdentity(ctx, peer, m.cfg.IdentifyTimeoutDuration())
	if err != nil {
		log.Printf("⚠️ 连接 %s 身份识别失败: %v", peer.RemoteAddr(), err)
		m.reject(peer, apperrors.ErrBadIdentification)
		return
	}

	_, resumed, err := m.sessions.Resume(token, peer)
	switch {
	case errors.Is(err, session.ErrTokenInUse):
		log.Printf("⚠️ token %s 已在对局中使用，拒绝 %s", token, peer.RemoteAddr())
		m.reject(peer, err)
		return
	case resumed:
		m.send(peer, protocol.TypeMessage, "Welcome back! Reconnecting to your match...")
		return
	}

	// 维护模式下只放行重连
	if m.closed.Load() {
		log.Printf("🚫 维护模式，拒绝新接入 %s (%s)", token, peer.RemoteAddr())
		m.reject(peer, apperrors.ErrServerMaintenance)
		return
	}

	m.mu.Lock()
	slot := m.queuedLocked(token)
	if slot >= 0 && m.ready[slot].peer.Alive() {
		m.mu.Unlock()
		log.Printf("⚠️ token %s 已在就绪队列中，拒绝 %s", token, peer.RemoteAddr())
		m.reject(peer, session.ErrTokenInUse)
		return
	}
	if slot < 0 && !m.hasRoomLocked() {
		m.mu.Unlock()
		m.spectators.Add(token, peer)
		log.Printf("👀 %s 作为观众加入 (%s)", token, peer.RemoteAddr())
		m.send(peer, protocol.TypeMessage, "A game is in progress. You have joined as a spectator.")
		return
	}
	sess, resumed, err := m.sessions.Identify(token, peer)
	if err != nil || resumed {
		m.mu.Unlock()
		if err != nil {
			m.reject(peer, err)
		}
		return
	}
	seat := NewSeat(sess, peer)
	var pos int
	if slot >= 0 {
		// 旧连接已断开：新连接接替原来的排队位置
		m.ready[slot] = seat
		pos = slot + 1
	} else {
		m.ready = append(m.ready, seat)
		pos = len(m.ready)
	}
	m.mu.Unlock()

	log.Printf("🔍 玩家 %s 加入就绪队列，位置 %d", token, pos)
	m.send(peer, protocol.TypeMessage, fmt.Sprintf("Welcome, %s! Waiting for an opponent... (queue position %d)", token, pos))
	m.kick()
}

// readIdentity 读取 "ID <token>"
func readIdentity(ctx context.Context, peer *transport.Peer, timeout time.Duration) (string, error) {
	line, err := peer.ReadLine(ctx, timeout)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(protocol.Parse(line).Payload)
	if len(fields) != 2 || !strings.EqualFold(fields[0], protocol.CmdIdentify) {
		return "", apperrors.ErrBadIdentification
	}
	return fields[1], nil
}

// queuedLocked 返回 token 在就绪队列中的下标，不存在时为 -1；调用方持有 m.mu
func (m *Matcher) queuedLocked(token string) int {
	for i, s := range m.ready {
		if s.Token == token {
			return i
		}
	}
	return -1
}

// hasRoomLocked 空闲槽位还能容纳更多排队玩家；调用方持有 m.mu
func (m *Matcher) hasRoomLocked() bool {
	free := m.cfg.MaxConcurrent - len(m.active)
	return len(m.ready) < 2*free
}

func (m *Matcher) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run 调度循环：被唤醒或定时检查是否可以开局，直到 ctx 取消
func (m *Matcher) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ScheduleInterval())
	defer ticker.Stop()

	go m.maintain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
		}
		m.tryStart(ctx)
	}
}

// tryStart 有空闲槽位时按 FIFO 取出队首两名玩家开局
func (m *Matcher) tryStart(ctx context.Context) {
	m.mu.Lock()
	stale := m.pruneReadyLocked()

	var started []*Match
	for len(m.ready) >= 2 && len(m.active) < m.cfg.MaxConcurrent {
		p1, p2 := m.ready[0], m.ready[1]
		m.ready[0], m.ready[1] = nil, nil
		m.ready = m.ready[2:]

		match := NewMatch(p1, p2, m.opts, m.spectators, m.stats)
		m.active[match.ID] = match
		started = append(started, match)
	}
	m.mu.Unlock()

	for _, s := range stale {
		log.Printf("🧹 移除已断开的排队玩家 %s", s.Token)
		m.sessions.Remove(s.Session)
	}
	for _, match := range started {
		m.wg.Add(1)
		go m.runMatch(ctx, match)
	}
}

// pruneReadyLocked 移除连接已关闭的排队玩家，保持其余顺序
func (m *Matcher) pruneReadyLocked() []*Seat {
	var stale []*Seat
	kept := m.ready[:0]
	for _, s := range m.ready {
		if s.peer.Alive() {
			kept = append(kept, s)
			continue
		}
		stale = append(stale, s)
	}
	clear(m.ready[len(kept):])
	m.ready = kept
	return stale
}

func (m *Matcher) runMatch(ctx context.Context, match *Match) {
	defer m.wg.Done()
	res := m.play(ctx, match)
	m.finish(ctx, match, res)
}

// play 运行对局；对局内部的 panic 在此恢复，双方释放且无胜者
func (m *Matcher) play(ctx context.Context, match *Match) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			log.Printf("[PANIC] 对局 %s 异常终止: %v", match.ID, r)
			seats := match.Seats()
			for _, s := range seats {
				m.send(s.peer, protocol.TypeMessage, "Internal error. The match has been terminated.")
			}
			m.spectators.Narrate("The match was terminated by a server error.")
			res = Result{Released: seats[:], Rounds: match.round}
		}
	}()
	return match.Run(ctx)
}

// finish 释放或回收席位，然后尝试开新局并晋升观众
func (m *Matcher) finish(ctx context.Context, match *Match, res Result) {
	for _, s := range res.Released {
		m.release(s)
	}
	for _, s := range res.Requeue {
		s.Session.ClearMatch()
		s.Board = nil
	}

	m.mu.Lock()
	delete(m.active, match.ID)
	m.ready = append(m.ready, res.Requeue...)
	positions := make(map[*Seat]int, len(res.Requeue))
	for i, s := range m.ready {
		positions[s] = i + 1
	}
	m.mu.Unlock()

	for _, s := range res.Requeue {
		m.send(s.peer, protocol.TypeMessage, fmt.Sprintf("You are back in the queue at position %d.", positions[s]))
	}

	if ctx.Err() != nil {
		return
	}
	m.kick()
	m.startPromotion(ctx)
}

// release 结束席位：关闭连接并删除会话
func (m *Matcher) release(s *Seat) {
	s.Session.ClearMatch()
	// 对局结束前刚刚到达的重连
	select {
	case late := <-s.Session.Reconnected():
		m.send(late, protocol.TypeMessage, "The match has already ended.")
		late.Close()
	default:
	}
	s.peer.Close()
	m.sessions.Remove(s.Session)
}

func (m *Matcher) startPromotion(ctx context.Context) {
	if !m.promoting.CompareAndSwap(false, true) {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.promoting.Store(false)
		m.promote(ctx)
	}()
}

// promote 按 FIFO 晋升观众，直到队列够开局或观众都试过一遍
func (m *Matcher) promote(ctx context.Context) {
	for attempts := m.spectators.Len(); attempts > 0; attempts-- {
		m.mu.Lock()
		room := m.hasRoomLocked() && len(m.ready) < 2
		m.mu.Unlock()
		if !room || ctx.Err() != nil {
			return
		}

		watcher := m.spectators.PopFront()
		if watcher == nil {
			return
		}
		if m.promoteOne(ctx, watcher) {
			m.kick()
			continue
		}
		if watcher.Peer.Alive() {
			m.spectators.PushBack(watcher)
		}
	}
}

// promoteOne 要求观众重新上报身份，成功后加入就绪队列
func (m *Matcher) promoteOne(ctx context.Context, watcher *Spectator) bool {
	peer := watcher.Peer
	peer.Drain()
	m.send(peer, protocol.TypeMessage, "A seat is available! Send your ID to join as a player.")
	m.send(peer, protocol.TypeCommand, protocol.CommandSendID)

	token, err := readIdentity(ctx, peer, m.cfg.PromotionTimeoutDuration())
	if err != nil {
		log.Printf("⚠️ 观众 %s 晋升失败: %v", watcher.Token, err)
		if peer.Alive() {
			m.send(peer, protocol.TypeMessage, "No valid ID received. You remain a spectator.")
		}
		return false
	}

	sess, _, err := m.sessions.Identify(token, peer)
	if err != nil {
		m.send(peer, protocol.TypeMessage, err.Error())
		return false
	}

	m.mu.Lock()
	seat := NewSeat(sess, peer)
	var pos int
	if slot >= 0 {
		// 旧连接已断开：新连接接替原来的排队位置
		m.ready[slot] = seat
		pos = slot + 1
	} else {
		m.ready = append(m.ready, seat)
		pos = len(m.ready)
	}
	m.mu.Unlock()

	log.Printf("⬆️ 观众 %s 晋升为玩家，队列位置 %d", token, pos)
	m.send(peer, protocol.TypeMessage, fmt.Sprintf("You have been promoted to player. Waiting for an opponent... (queue position %d)", pos))
	return true
}

// maintain 定期通知排队位置并清理失效连接
func (m *Matcher) maintain(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.QueueNotifyDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.notifyQueue()
			m.spectators.Prune()
			m.startPromotion(ctx)
		}
	}
}

// notifyQueue 告知排队玩家当前位置，不改变队列顺序
func (m *Matcher) notifyQueue() {
	m.mu.Lock()
	queued := append([]*Seat(nil), m.ready...)
	m.mu.Unlock()

	for i, s := range queued {
		// 排队期间的输入没有意义
		s.peer.Drain()
		m.send(s.peer, protocol.TypeMessage, fmt.Sprintf("You are #%d in the queue. Waiting for an opponent...", i+1))
	}
}

// QueueLen 就绪队列长度
func (m *Matcher) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready)
}

// QueueTokens 就绪队列中的 token，按排队顺序
func (m *Matcher) QueueTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := make([]string, len(m.ready))
	for i, s := range m.ready {
		tokens[i] = s.Token
	}
	return tokens
}

// ActiveCount 进行中的对局数
func (m *Matcher) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// ActiveMatches 进行中的对局快照
func (m *Matcher) ActiveMatches() []*Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*Match, 0, len(m.active))
	for _, match := range m.active {
		list = append(list, match)
	}
	return list
}

// SpectatorCount 观众数量
func (m *Matcher) SpectatorCount() int {
	return m.spectators.Len()
}

// Shutdown 等待对局协程退出（ctx 已取消后调用），然后关闭排队玩家与观众
func (m *Matcher) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("⚠️ 等待对局结束超时")
	}

	m.mu.Lock()
	queued := m.ready
	m.ready = nil
	m.mu.Unlock()
	for _, s := range queued {
		s.peer.Close()
	}
	m.spectators.CloseAll()
}

// StopAdmissions 停止接纳新玩家与观众，已有会话的重连不受影响
func (m *Matcher) StopAdmissions() {
	m.closed.Store(true)
}

// Announce 向排队玩家与观众发送通知（维护、停机等）
func (m *Matcher) Announce(text string) {
	m.mu.Lock()
	queued := append([]*Seat(nil), m.ready...)
	m.mu.Unlock()

	for _, s := range queued {
		m.send(s.peer, protocol.TypeMessage, text)
	}
	m.spectators.Narrate(text)
}
