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

const setupWaitNotice = "Please wait, your opponent is placing ships."

// playRound 一局完整流程：布舰 → 轮流开火
func (m *Match) playRound(ctx context.Context) roundOutcome {
	m.setPhase(PhaseAwaitingSetup)
	m.shots = 0
	for _, s := range m.seats {
		s.Board = nil
	}

	m.message(0, "Both players connected! Now set up your ships.")
	m.message(1, "Both players connected! Waiting for Player 1 to place ships.")
	m.narrate(fmt.Sprintf("Round %d: %s vs %s", m.round, m.seats[0].Token, m.seats[1].Token))

	for idx := range m.seats {
		m.setPhase(PhaseSetupP1 + Phase(idx))
		if err := m.setup(ctx, idx); err != nil {
			return m.setupFailed(ctx, idx, err)
		}
	}

	for idx, s := range m.seats {
		m.grid(idx, true, s.Board.FullRows())
	}
	m.message(0, "Game started! You are Player 1.")
	m.message(1, "Game started! You are Player 2.")
	m.message(0, "You go first.")
	m.message(1, "Waiting for Player 1 to make their move...")
	m.narrate("Battle begins! Player 1 fires first.")

	m.turn = 0
	return m.playTurns(ctx)
}

// setup 为 idx 席位布舰
func (m *Match) setup(ctx context.Context, idx int) error {
	b := m.opts.NewBoard()

	m.message(idx, fmt.Sprintf("Place ships manually (M) or randomly (R)? [M/R]  (timeout in %ds):", int(m.opts.ChoiceTimeout.Seconds())))
	if idx == 1 {
		m.message(0, "Waiting for Player 2 to place ships...")
	}

	choice, err := m.await(ctx, idx, m.opts.ChoiceTimeout, setupWaitNotice)
	if err != nil {
		return err
	}

	switch strings.ToUpper(strings.TrimSpace(choice)) {
	case "M":
		if err := m.placeManually(ctx, idx, b); err != nil {
			return err
		}
	case strings.ToUpper(protocol.CmdQuit):
		return errQuit
	default:
		b.PlaceRandomly(m.opts.Fleet)
		m.message(idx, "Ships placed randomly.")
	}

	m.seats[idx].Board = b
	return nil
}

// placeManually 逐艘布舰，输入非法时重试，不限次数
func (m *Match) placeManually(ctx context.Context, idx int, b Board) error {
	for _, ship := range m.opts.Fleet {
		for {
			m.message(idx, fmt.Sprintf("Placing %s (size %d)", ship.Name, ship.Size))
			m.message(idx, "Enter starting coordinate (e.g. A1):")
			coord, err := m.await(ctx, idx, m.opts.SetupTimeout, setupWaitNotice)
			if err != nil {
				return err
			}
			if isQuit(coord) {
				return errQuit
			}

			m.message(idx, "Orientation? Enter 'H' or 'V':")
			orient, err := m.await(ctx, idx, m.opts.SetupTimeout, setupWaitNotice)
			if err != nil {
				return err
			}
			if isQuit(orient) {
				return errQuit
			}

			o, ok := board.ParseOrientation(orient)
			if !ok {
				m.message(idx, "Invalid orientation. Please enter H or V.")
				continue
			}
			row, col, err := board.ParseCoordinate(coord)
			if err != nil {
				m.message(idx, "Invalid coordinate format. Use A1-J10.")
				continue
			}
			if _, err := b.Place(ship.Name, row, col, ship.Size, o); err != nil {
				m.message(idx, apperrors.ErrInvalidPlacement.Error()+". Try again.")
				continue
			}

			m.grid(idx, true, b.FullRows())
			break
		}
	}
	return nil
}

// setupFailed 布舰阶段失败立即结束本局，不进入重连宽限
func (m *Match) setupFailed(ctx context.Context, idx int, err error) roundOutcome {
	if ctx.Err() != nil {
		return abandoned
	}

	loser := idx
	var dropped *seatDropped
	if errors.As(err, &dropped) {
		loser = dropped.seat
	}
	winner := 1 - loser

	if errors.Is(err, errQuit) {
		m.result(loser, protocol.ResultForfeit)
		m.message(winner, "Opponent quit")
		m.result(winner, protocol.ResultWin)
		m.narrate(fmt.Sprintf("Player %d quit during setup. Player %d wins!", loser+1, winner+1))
		return roundOutcome{kind: endForfeit, winner: winner}
	}

	if errors.Is(err, transport.ErrTimeout) {
		m.message(loser, "Setup timed out.")
		m.result(loser, protocol.ResultLose)
	}
	m.message(winner, "Opponent disconnected during setup (timeout or quit)")
	m.result(winner, protocol.ResultWin)
	m.narrate(fmt.Sprintf("Player %d failed to finish setup. Player %d wins!", loser+1, winner+1))
	return roundOutcome{kind: endSetup, winner: winner}
}

func isQuit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), protocol.CmdQuit)
}
