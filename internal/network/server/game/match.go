package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/palemoky/battleship/internal/network/server/storage"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/transport"
)

// Phase 对局阶段
type Phase int32

const (
	PhaseAwaitingSetup Phase = iota
	PhaseSetupP1
	PhaseSetupP2
	PhaseTurn
	PhaseTerminated
	PhaseRematchPoll
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingSetup:
		return "awaiting_setup"
	case PhaseSetupP1:
		return "setup_p1"
	case PhaseSetupP2:
		return "setup_p2"
	case PhaseTurn:
		return "turn"
	case PhaseTerminated:
		return "terminated"
	case PhaseRematchPoll:
		return "rematch_poll"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

// endKind 一局的结束方式
type endKind int

const (
	endSunk       endKind = iota // 击沉全部舰船，进入再来一局询问
	endForfeit                   // 认输
	endSetup                     // 布舰阶段掉线或超时
	endDisconnect                // 宽限期内未重连
	endAbandoned                 // 双方都不可达或服务关闭，无胜者
)

func (k endKind) reason() string {
	switch k {
	case endSunk:
		return storage.ReasonSunk
	case endForfeit:
		return storage.ReasonForfeit
	case endSetup:
		return storage.ReasonSetup
	case endDisconnect:
		return storage.ReasonDisconnect
	}
	return ""
}

type roundOutcome struct {
	kind   endKind
	winner int // -1 表示无胜者
}

var abandoned = roundOutcome{kind: endAbandoned, winner: -1}

// errQuit 玩家在布舰阶段输入 quit
var errQuit = errors.New("player quit")

// seatDropped 某个席位的连接已断开
type seatDropped struct {
	seat int
}

func (e *seatDropped) Error() string {
	return fmt.Sprintf("seat %d dropped", e.seat+1)
}

func (e *seatDropped) Unwrap() error {
	return transport.ErrClosed
}

// Result 对局结束后各席位的去向
type Result struct {
	Requeue  []*Seat // 回到就绪队列
	Released []*Seat // 释放连接
	Winner   string  // 最后一局胜者 token
	Rounds   int
}

// Match 一场两人对局
type Match struct {
	ID string

	seats    [2]*Seat
	opts     Options
	narrator Narrator
	stats    StatsRecorder

	phase atomic.Int32
	turn  int
	round int
	shots int
}

// NewMatch 创建对局；narrator 与 stats 可为 nil
func NewMatch(p1, p2 *Seat, opts Options, narrator Narrator, stats StatsRecorder) *Match {
	opts.withDefaults()
	return &Match{
		ID:       uuid.New().String(),
		seats:    [2]*Seat{p1, p2},
		opts:     opts,
		narrator: narrator,
		stats:    stats,
	}
}

// Phase 当前阶段
func (m *Match) Phase() Phase {
	return Phase(m.phase.Load())
}

func (m *Match) setPhase(p Phase) {
	m.phase.Store(int32(p))
}

// Seats 两个席位
func (m *Match) Seats() [2]*Seat {
	return m.seats
}

// Run 驱动整场对局直到结束；阻塞调用
func (m *Match) Run(ctx context.Context) Result {
	defer m.setPhase(PhaseEnded)

	for _, s := range m.seats {
		s.Session.SetMatch(m.ID)
		// 排队期间的输入不计入对局
		s.peer.Drain()
	}
	log.Printf("🎮 对局 %s 开始: %s vs %s", m.ID, m.seats[0].Token, m.seats[1].Token)

	for {
		m.round++
		out := m.playRound(ctx)
		m.setPhase(PhaseTerminated)
		m.record(ctx, out)

		if out.kind != endSunk {
			return m.settle(out)
		}

		m.setPhase(PhaseRematchPoll)
		again := m.rematchPoll(ctx)
		if again[0] && again[1] {
			m.broadcastSeats("Both players agreed to play again! Starting a new round.")
			m.narrate("Both players agreed to a rematch.")
			continue
		}
		return m.settleRematch(again, m.seats[out.winner].Token)
	}
}

// settle 非正常结束：存活的胜者回到队列，其余释放
func (m *Match) settle(out roundOutcome) Result {
	res := Result{Rounds: m.round}
	for idx, s := range m.seats {
		if idx == out.winner && s.peer.Alive() {
			res.Requeue = append(res.Requeue, s)
			continue
		}
		res.Released = append(res.Released, s)
	}
	if out.winner >= 0 {
		res.Winner = m.seats[out.winner].Token
	}
	log.Printf("🏁 对局 %s 结束 (%s), 胜者: %q", m.ID, out.kind.reason(), res.Winner)
	return res
}

// settleRematch 按再来一局的投票结果分配席位
func (m *Match) settleRematch(again [2]bool, winner string) Result {
	res := Result{Rounds: m.round, Winner: winner}
	for idx, s := range m.seats {
		if again[idx] && s.peer.Alive() {
			m.message(idx, "Opponent declined to continue. Game session ended.")
			res.Requeue = append(res.Requeue, s)
			continue
		}
		m.message(idx, "Session ended.")
		res.Released = append(res.Released, s)
	}
	m.narrate("The match is over.")
	log.Printf("🏁 对局 %s 结束，共 %d 局，回队 %d 人", m.ID, m.round, len(res.Requeue))
	return res
}

func (m *Match) record(ctx context.Context, out roundOutcome) {
	if m.stats == nil || out.winner < 0 {
		return
	}
	rec := storage.MatchRecord{
		MatchID: m.ID,
		Round:   m.round,
		Winner:  m.seats[out.winner].Token,
		Loser:   m.seats[1-out.winner].Token,
		Reason:  out.kind.reason(),
		Shots:   m.shots,
		EndedAt: time.Now(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := m.stats.RecordMatch(rctx, rec); err != nil {
		log.Printf("⚠️ 记录对局结果失败: %v", err)
	}
}

// --- 输出 ---

func (m *Match) send(idx int, t protocol.PacketType, payload string) {
	// 写失败时 Peer 会自行关闭，由后续读取感知掉线
	_ = m.seats[idx].peer.Send(protocol.Format(t, payload, !m.opts.Legacy))
}

func (m *Match) message(idx int, text string) {
	m.send(idx, protocol.TypeMessage, text)
}

func (m *Match) result(idx int, payload string) {
	m.send(idx, protocol.TypeResult, payload)
}

func (m *Match) broadcastSeats(text string) {
	for idx := range m.seats {
		m.message(idx, text)
	}
}

func (m *Match) grid(idx int, self bool, rows []string) {
	_ = m.seats[idx].peer.SendAll(protocol.GridBlock(self, rows, !m.opts.Legacy)...)
}

func (m *Match) narrate(text string) {
	if m.narrator != nil {
		m.narrator.Narrate(text)
	}
}

// --- 输入 ---

// await 等待 idx 席位的下一行输入。
// 另一席位的输入被丢弃并回复 waitNotice；任一席位断开都会返回 *seatDropped。
func (m *Match) await(ctx context.Context, idx int, timeout time.Duration, waitNotice string) (string, error) {
	active, other := m.seats[idx], m.seats[1-idx]

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case line := <-active.peer.Lines():
			active.Session.Touch()
			return protocol.Parse(line).Payload, nil
		case <-active.peer.Done():
			select {
			case line := <-active.peer.Lines():
				return protocol.Parse(line).Payload, nil
			default:
				return "", &seatDropped{seat: idx}
			}
		case <-other.peer.Lines():
			other.Session.Touch()
			m.message(1-idx, waitNotice)
		case <-other.peer.Done():
			return "", &seatDropped{seat: 1 - idx}
		case <-expired:
			return "", transport.ErrTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
