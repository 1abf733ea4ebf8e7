package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/palemoky/battleship/internal/apperrors"
	"github.com/palemoky/battleship/internal/game/board"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/transport"
)

var notYourTurnNotice = apperrors.ErrNotYourTurn.Error() + "."

// playTurns 轮流开火直到分出胜负或对局中止
func (m *Match) playTurns(ctx context.Context) roundOutcome {
	for {
		m.setPhase(PhaseTurn)

		if out, done := m.probeSeats(ctx); done {
			return out
		}

		m.promptTurn(m.turn)
		line, err := m.await(ctx, m.turn, m.opts.TurnTimeout, notYourTurnNotice)
		if err != nil {
			if out, done := m.turnFailed(ctx, err); done {
				return out
			}
			continue
		}

		if out, done := m.handleCommand(m.turn, line); done {
			return out
		}
	}
}

// probeSeats 回合之间探测双方连接，写失败即进入掉线流程
func (m *Match) probeSeats(ctx context.Context) (roundOutcome, bool) {
	ping := protocol.Format(protocol.TypeControl, protocol.ControlPing, !m.opts.Legacy)
	for _, s := range m.seats {
		_ = s.peer.Send(ping)
	}

	alive := [2]bool{m.seats[0].peer.Alive(), m.seats[1].peer.Alive()}
	switch {
	case !alive[0] && !alive[1]:
		m.narrate("Both players disconnected. The match is abandoned.")
		return abandoned, true
	case !alive[0]:
		return m.dropped(ctx, 0)
	case !alive[1]:
		return m.dropped(ctx, 1)
	}
	return roundOutcome{}, false
}

// dropped 某席位掉线：等待重连，恢复后继续当前回合
func (m *Match) dropped(ctx context.Context, idx int) (roundOutcome, bool) {
	out, resumed := m.handleDrop(ctx, idx)
	if resumed {
		return roundOutcome{}, false
	}
	return out, true
}

func (m *Match) promptTurn(idx int) {
	m.grid(idx, false, m.seats[1-idx].Board.MaskedRows())
	m.message(idx, "Your turn! Enter command (e.g. FIRE B5):")
	m.send(idx, protocol.TypeCommand, protocol.CommandYourTurn)
}

// turnFailed 处理回合读取失败：超时跳过回合，断线进入重连等待
func (m *Match) turnFailed(ctx context.Context, err error) (roundOutcome, bool) {
	var dropped *seatDropped
	switch {
	case errors.As(err, &dropped):
		if !m.seats[1-dropped.seat].peer.Alive() {
			m.narrate("Both players disconnected. The match is abandoned.")
			return abandoned, true
		}
		return m.dropped(ctx, dropped.seat)
	case errors.Is(err, transport.ErrTimeout):
		idx := m.turn
		m.message(idx, "Timeout occurred. Your turn was skipped.")
		m.message(1-idx, "Opponent timed out. Their turn was skipped.")
		m.narrate(fmt.Sprintf("Player %d timed out and skipped their turn.", idx+1))
		m.turn = 1 - idx
		return roundOutcome{}, false
	}
	return abandoned, true
}

// handleCommand 执行当前席位的一条指令；非法输入不消耗回合
func (m *Match) handleCommand(idx int, line string) (roundOutcome, bool) {
	opp := 1 - idx

	if isQuit(line) {
		m.result(idx, protocol.ResultForfeit)
		m.message(opp, "Opponent quit")
		m.result(opp, protocol.ResultWin)
		m.narrate(fmt.Sprintf("Player %d forfeited. Player %d wins!", idx+1, opp+1))
		return roundOutcome{kind: endForfeit, winner: opp}, true
	}

	row, col, err := parseFire(line)
	if err != nil {
		m.rejectFire(idx, err)
		return roundOutcome{}, false
	}

	coord := board.Cell{Row: row, Col: col}.String()
	m.narrate(fmt.Sprintf("Player %d fires at %s.", idx+1, coord))

	target := m.seats[opp].Board
	outcome, sunk := target.FireAt(row, col)

	switch outcome {
	case board.AlreadyShot:
		m.result(idx, protocol.ResultAlready)
		m.message(idx, "You've already fired at that location. Try again.")
		m.narrate(fmt.Sprintf("Player %d fired at %s again. No effect.", idx+1, coord))
		return roundOutcome{}, false

	case board.Hit:
		m.shots++
		payload := protocol.ResultHit
		if sunk != "" {
			payload += " " + strings.ToUpper(sunk)
			m.narrate(fmt.Sprintf("HIT! Player %d sank the %s!", idx+1, sunk))
		} else {
			m.narrate(fmt.Sprintf("HIT! Player %d hit a ship at %s.", idx+1, coord))
		}
		m.result(idx, payload)
		m.message(opp, fmt.Sprintf("Opponent fired at %s: hit", coord))
		m.grid(opp, true, target.FullRows())

		if target.AllSunk() {
			m.grid(idx, false, target.MaskedRows())
			m.result(idx, protocol.ResultWin)
			m.result(opp, protocol.ResultLose)
			m.narrate(fmt.Sprintf("Player %d sank all ships and wins the game!", idx+1))
			return roundOutcome{kind: endSunk, winner: idx}, true
		}

	case board.Miss:
		m.shots++
		m.result(idx, protocol.ResultMiss)
		m.message(opp, fmt.Sprintf("Opponent fired at %s: miss", coord))
		m.grid(opp, true, target.FullRows())
		m.narrate(fmt.Sprintf("MISS! Player %d fired at %s.", idx+1, coord))
	}

	m.grid(idx, false, target.MaskedRows())
	m.turn = opp
	return roundOutcome{}, false
}

func (m *Match) rejectFire(idx int, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeOutOfBounds:
		m.result(idx, protocol.ResultInvalid+" COORDINATE")
		m.message(idx, "Coordinate out of bounds. Use A1-J10.")
	case apperrors.CodeInvalidCoordinate:
		m.result(idx, protocol.ResultInvalid+" COORDINATE")
		m.message(idx, "Invalid coordinate. Use A1-J10.")
	default:
		m.result(idx, protocol.ResultInvalid+" INPUT (e.g. FIRE B2)")
	}
}

// parseFire 解析 "FIRE <coord>"
func parseFire(line string) (row, col int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || !strings.EqualFold(fields[0], protocol.CmdFire) {
		return 0, 0, apperrors.ErrInvalidCommand
	}
	row, col, err = board.ParseCoordinate(fields[1])
	if err != nil {
		return 0, 0, apperrors.ErrInvalidCoordinate
	}
	if !board.InBounds(row, col) {
		return 0, 0, apperrors.ErrOutOfBounds
	}
	return row, col, nil
}
