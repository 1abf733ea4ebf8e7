package game

import (
	"context"
	"strings"
	"sync"

	"github.com/palemoky/battleship/internal/protocol"
)

// rematchPoll 同时询问双方是否再来一局
func (m *Match) rematchPoll(ctx context.Context) [2]bool {
	var (
		again [2]bool
		wg    sync.WaitGroup
	)
	for idx := range m.seats {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again[idx] = m.askPlayAgain(ctx, idx)
		}()
	}
	wg.Wait()
	return again
}

// askPlayAgain 最多询问 RematchAttempts 次；超时、断线或次数用尽视为拒绝
func (m *Match) askPlayAgain(ctx context.Context, idx int) bool {
	peer := m.seats[idx].peer
	peer.Drain()

	for range m.opts.RematchAttempts {
		m.message(idx, "Play again? (Y/N)")
		line, err := peer.ReadLine(ctx, m.opts.RematchTimeout)
		if err != nil {
			return false
		}
		m.seats[idx].Session.Touch()

		switch strings.ToUpper(protocol.Parse(line).Payload) {
		case "Y", "YES":
			m.message(idx, "Waiting for the other player to decide...")
			return true
		case "N", "NO":
			return false
		}
		m.message(idx, "Invalid response. Please enter Y or N.")
	}
	return false
}
