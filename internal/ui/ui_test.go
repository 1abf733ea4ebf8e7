package ui

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/battleship/internal/network/client"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/sound"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	closed bool
	events chan client.Event
}

func newFakeSender() *fakeSender {
	return &fakeSender{events: make(chan client.Event, 16)}
}

func (f *fakeSender) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, line)
	return nil
}

func (f *fakeSender) Quit() error { return f.Send(protocol.CmdQuit) }

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) Events() <-chan client.Event { return f.events }

func (f *fakeSender) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type recordingPlayer struct {
	played []string
}

func (p *recordingPlayer) Play(name string) { p.played = append(p.played, name) }

func packet(t protocol.PacketType, payload string) client.Event {
	return client.Event{Kind: client.EventPacket, Packet: protocol.Packet{Type: t, Payload: payload}}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestModel_YourTurnAndFire(t *testing.T) {
	t.Parallel()
	s := newFakeSender()
	player := &recordingPlayer{}
	m := NewModel(s, player, "alice")

	m = update(t, m, eventMsg(packet(protocol.TypeCommand, protocol.CommandYourTurn)))
	assert.True(t, m.yourTurn)
	assert.Contains(t, m.status, "Your turn")
	assert.Equal(t, []string{sound.Turn}, player.played)

	m.input.SetValue("fire b5")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"fire b5"}, s.Sent())
	assert.False(t, m.yourTurn)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.lines, "> fire b5")
}

func TestModel_GridsAndResults(t *testing.T) {
	t.Parallel()
	m := NewModel(newFakeSender(), nil, "alice")

	rows := []string{"   1  2", "A   .  S", "B   X  o"}
	m = update(t, m, eventMsg(client.Event{Kind: client.EventGrid, Grid: client.Grid{Self: true, Rows: rows}}))
	m = update(t, m, eventMsg(client.Event{Kind: client.EventGrid, Grid: client.Grid{Rows: rows[:2]}}))
	assert.Equal(t, rows, m.self)
	assert.Equal(t, rows[:2], m.opponent)

	m = update(t, m, eventMsg(packet(protocol.TypeResult, protocol.ResultWin)))
	assert.Equal(t, "You win!", m.status)

	view := m.View()
	assert.Contains(t, view, "Your fleet")
	assert.Contains(t, view, "Enemy waters")
	assert.Contains(t, view, "alice")
}

func TestModel_ReconnectAndClose(t *testing.T) {
	t.Parallel()
	s := newFakeSender()
	m := NewModel(s, nil, "alice")

	m = update(t, m, eventMsg(client.Event{Kind: client.EventReconnecting, Attempt: 2, MaxAttempts: 5}))
	assert.Contains(t, m.status, "(2/5)")
	m = update(t, m, eventMsg(client.Event{Kind: client.EventReconnected}))
	assert.Equal(t, "Reconnected.", m.status)

	next, cmd := m.Update(eventMsg(client.Event{Kind: client.EventClosed}))
	m = next.(Model)
	assert.True(t, m.disconnected)
	assert.Nil(t, cmd, "no more events are awaited after close")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_CtrlCQuitsMatch(t *testing.T) {
	t.Parallel()
	s := newFakeSender()
	m := NewModel(s, nil, "alice")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, []string{protocol.CmdQuit}, s.Sent())
	assert.True(t, s.closed)
}

func TestRenderGrid(t *testing.T) {
	t.Parallel()
	out := RenderGrid("Your fleet", []string{"   1", "A   S"}, true)
	assert.Contains(t, out, "Your fleet")
	assert.Contains(t, out, "S")

	empty := RenderGrid("Enemy waters", nil, false)
	assert.Contains(t, empty, "no board yet")
}

func TestRunPlain(t *testing.T) {
	t.Parallel()
	s := newFakeSender()
	player := &recordingPlayer{}
	var out bytes.Buffer

	s.events <- client.Event{Kind: client.EventGrid, Grid: client.Grid{Self: true, Rows: []string{"   1", "A   S"}}}
	s.events <- packet(protocol.TypeCommand, protocol.CommandYourTurn)
	s.events <- packet(protocol.TypeResult, "HIT CARRIER")
	s.events <- packet(protocol.TypeMessage, "Opponent fired at A1: hit")

	in := strings.NewReader("FIRE A1\n\n")
	done := make(chan error, 1)
	go func() {
		// stdin 读完后 RunPlain 退出
		done <- RunPlain(context.Background(), s, player, in, &out)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunPlain did not return")
	}

	assert.Equal(t, []string{"FIRE A1"}, s.Sent())
	assert.True(t, s.closed)
}

func TestPrintEvent(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	player := &recordingPlayer{}

	done, err := printEvent(&out, player, client.Event{Kind: client.EventGrid, Grid: client.Grid{Rows: []string{"   1", "A   X"}}})
	assert.False(t, done)
	assert.NoError(t, err)
	done, _ = printEvent(&out, player, packet(protocol.TypeCommand, protocol.CommandYourTurn))
	assert.False(t, done)
	_, _ = printEvent(&out, player, packet(protocol.TypeResult, "HIT CARRIER"))
	done, _ = printEvent(&out, player, client.Event{Kind: client.EventClosed})
	assert.True(t, done)

	text := out.String()
	assert.Contains(t, text, "Opponent's board:")
	assert.Contains(t, text, ">>> Your turn")
	assert.Contains(t, text, "RESULT HIT CARRIER")
	assert.Contains(t, text, "Disconnected.")
	assert.Equal(t, []string{sound.Turn, sound.Sunk}, player.played)
}
