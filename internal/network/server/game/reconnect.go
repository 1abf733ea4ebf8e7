package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/palemoky/battleship/internal/protocol"
)

// handleDrop 等待 idx 席位在宽限期内重连。
// resumed=true 表示已换绑新连接，当前回合继续；否则返回本局结果。
func (m *Match) handleDrop(ctx context.Context, idx int) (roundOutcome, bool) {
	seat, opp := m.seats[idx], 1-idx
	other := m.seats[opp]

	seat.Session.MarkDisconnected(seat.peer)
	grace := m.opts.ReconnectGrace
	log.Printf("⚠️ 对局 %s: 玩家 %s 掉线，等待重连 %v", m.ID, seat.Token, grace)

	m.message(opp, fmt.Sprintf("Opponent disconnected. Waiting up to %ds for them to reconnect...", int(grace.Seconds())))
	m.narrate(fmt.Sprintf("Player %d disconnected. Waiting for reconnection...", idx+1))

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	poll := time.NewTicker(m.opts.ReconnectPoll)
	defer poll.Stop()

	ping := protocol.Format(protocol.TypeControl, protocol.ControlPing, !m.opts.Legacy)

	for {
		select {
		case peer := <-seat.Session.Reconnected():
			old := seat.peer
			seat.peer = peer
			old.Close()
			seat.Session.MarkConnected()
			log.Printf("✅ 对局 %s: 玩家 %s 已重连 (%s)", m.ID, seat.Token, peer.RemoteAddr())

			m.message(idx, "Reconnected! Resuming the match.")
			if seat.Board != nil && other.Board != nil {
				m.grid(idx, true, seat.Board.FullRows())
				m.grid(idx, false, other.Board.MaskedRows())
			}
			m.message(opp, "Opponent reconnected. Resuming the match.")
			m.narrate(fmt.Sprintf("Player %d reconnected. The match resumes.", idx+1))
			return roundOutcome{}, true

		case <-poll.C:
			if err := other.peer.Send(ping); err != nil || !other.peer.Alive() {
				return m.bothGone(idx)
			}

		case <-other.peer.Done():
			return m.bothGone(idx)

		case <-other.peer.Lines():
			other.Session.Touch()
			m.message(opp, "Opponent is disconnected. Please wait.")

		case <-deadline.C:
			log.Printf("⏰ 对局 %s: 玩家 %s 重连超时", m.ID, seat.Token)
			m.message(opp, "Opponent failed to reconnect in time.")
			m.result(opp, protocol.ResultWin)
			m.narrate(fmt.Sprintf("Player %d failed to reconnect. Player %d wins!", idx+1, opp+1))
			return roundOutcome{kind: endDisconnect, winner: opp}, false

		case <-ctx.Done():
			return abandoned, false
		}
	}
}

func (m *Match) bothGone(idx int) (roundOutcome, bool) {
	log.Printf("❌ 对局 %s: 等待重连期间对手也已离开，无胜者", m.ID)
	m.narrate(fmt.Sprintf("Player %d also left. The match ends with no winner.", 2-idx))
	return abandoned, false
}
