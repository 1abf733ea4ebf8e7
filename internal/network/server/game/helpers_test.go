package game

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/palemoky/battleship/internal/game/board"
	"github.com/palemoky/battleship/internal/network/server/session"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/testutil"
	"github.com/palemoky/battleship/internal/transport"
)

const (
	eventually = time.Second
	tick       = 5 * time.Millisecond
)

// testOptions 单格舰队 + 较短超时，对局可以一枪结束
func testOptions() Options {
	return Options{
		TurnTimeout:     2 * time.Second,
		SetupTimeout:    2 * time.Second,
		ChoiceTimeout:   2 * time.Second,
		RematchTimeout:  500 * time.Millisecond,
		RematchAttempts: 2,
		ReconnectGrace:  2 * time.Second,
		ReconnectPoll:   20 * time.Millisecond,
		Fleet:           []board.ShipSpec{{Name: "Patrol", Size: 1}},
	}
}

type player struct {
	token string
	conn  *testutil.FakeConn
	peer  *transport.Peer
	seat  *Seat
}

func newConn(t *testing.T, name string) (*testutil.FakeConn, *transport.Peer) {
	t.Helper()
	conn := testutil.NewFakeConn(name)
	peer := transport.NewPeer(conn)
	t.Cleanup(peer.Close)
	return conn, peer
}

func newPlayer(t *testing.T, sessions *session.Manager, token string) *player {
	t.Helper()
	conn, peer := newConn(t, token)
	sess, _, err := sessions.Identify(token, peer)
	require.NoError(t, err)
	return &player{token: token, conn: conn, peer: peer, seat: NewSeat(sess, peer)}
}

type harness struct {
	match    *Match
	sessions *session.Manager
	a, b     *player
	narrator *testutil.RecordingNarrator
	cancel   context.CancelFunc
	done     chan Result
}

func startMatch(t *testing.T, opts Options, narrator Narrator, stats StatsRecorder) *harness {
	t.Helper()
	sessions := session.NewManager(time.Minute)
	h := &harness{
		sessions: sessions,
		a:        newPlayer(t, sessions, "alice"),
		b:        newPlayer(t, sessions, "bob"),
		narrator: &testutil.RecordingNarrator{},
		done:     make(chan Result, 1),
	}
	if narrator == nil {
		narrator = h.narrator
	}
	h.match = NewMatch(h.a.seat, h.b.seat, opts, narrator, stats)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { h.done <- h.match.Run(ctx) }()
	return h
}

func (h *harness) wait(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-h.done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("match did not finish")
		return Result{}
	}
}

// placeAt 手动把单格舰船放在 coord
func placeAt(t *testing.T, p *player, coord string) {
	t.Helper()
	p.conn.WaitPayload(t, "[M/R]")
	p.conn.Type("M")
	p.conn.WaitPayload(t, "Enter starting coordinate")
	p.conn.Type(coord)
	p.conn.WaitPayload(t, "Orientation?")
	p.conn.Type("H")
}

// setupBoth 双方都把舰船放在 A1，随后轮到 alice
func (h *harness) setupBoth(t *testing.T) {
	t.Helper()
	placeAt(t, h.a, "A1")
	placeAt(t, h.b, "A1")
	h.a.conn.WaitPayload(t, "You go first.")
}

// fire 等待轮到 p，开火并返回 RESULT
func fire(t *testing.T, p *player, coord string) protocol.Packet {
	t.Helper()
	p.conn.WaitCommand(t, protocol.CommandYourTurn)
	p.conn.Type("FIRE " + coord)
	return p.conn.WaitResult(t)
}

func isYourTurn(p protocol.Packet) bool {
	return p.Type == protocol.TypeCommand && p.Payload == protocol.CommandYourTurn
}

func containsPayload(substr string) func(protocol.Packet) bool {
	return func(p protocol.Packet) bool {
		return strings.Contains(p.Payload, substr)
	}
}

// declineRematch 双方拒绝再来一局
func (h *harness) declineRematch(t *testing.T) {
	t.Helper()
	for _, p := range []*player{h.a, h.b} {
		p.conn.WaitPayload(t, "Play again?")
		p.conn.Type("N")
	}
}
