package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/testutil"
	"github.com/palemoky/battleship/internal/transport"
)

const wait = 2 * time.Second

// fakeServer 每次拨号返回一条新的内存连接
type fakeServer struct {
	mu    sync.Mutex
	conns []*testutil.FakeConn
	fail  int
	dials chan *testutil.FakeConn
}

func newFakeServer() *fakeServer {
	return &fakeServer{dials: make(chan *testutil.FakeConn, 8)}
}

func (s *fakeServer) dial(_ context.Context, _ string) (transport.LineConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return nil, transport.ErrClosed
	}
	conn := testutil.NewFakeConn("fake")
	s.conns = append(s.conns, conn)
	s.dials <- conn
	return conn, nil
}

func (s *fakeServer) next(t *testing.T) *testutil.FakeConn {
	t.Helper()
	select {
	case conn := <-s.dials:
		return conn
	case <-time.After(wait):
		t.Fatal("no dial")
		return nil
	}
}

// sent 读取客户端写出的下一行；FakeConn 在这里扮演服务端
func sent(t *testing.T, conn *testutil.FakeConn) string {
	t.Helper()
	pkt, ok := conn.Next(wait)
	require.True(t, ok, "client sent nothing")
	return pkt.Payload
}

func framed(t protocol.PacketType, payload string) string {
	return protocol.MustEncode(t, payload)
}

func nextEvent(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %d", kind)
			return Event{}
		}
	}
}

func newTestClient(t *testing.T, srv *fakeServer) *Client {
	t.Helper()
	c := NewClient("fake:5000", "alice", WithDialer(srv.dial), WithBackoff(10*time.Millisecond, 3))
	t.Cleanup(c.Close)
	return c
}

func TestClient_IdentifiesOnConnect(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	c := newTestClient(t, srv)

	require.NoError(t, c.Connect(context.Background()))
	conn := srv.next(t)

	assert.Equal(t, "ID alice", sent(t, conn))

	require.NoError(t, c.Fire(" b5 "))
	assert.Equal(t, "FIRE B5", sent(t, conn))
}

func TestClient_ParsesFramedAndLegacy(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	conn := srv.next(t)

	require.True(t, conn.Type(framed(protocol.TypeResult, "HIT CARRIER")))
	ev := nextEvent(t, c, EventPacket)
	assert.Equal(t, protocol.TypeResult, ev.Packet.Type)
	assert.Equal(t, "HIT CARRIER", ev.Packet.Payload)

	require.True(t, conn.Type("RESULT MISS"))
	ev = nextEvent(t, c, EventPacket)
	assert.Equal(t, protocol.TypeResult, ev.Packet.Type)
	assert.Equal(t, "MISS", ev.Packet.Payload)
	assert.False(t, ev.Packet.Framed)
}

func TestClient_AssemblesGrid(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	conn := srv.next(t)

	rows := []string{"   1 2", "A  . S", "B  X o"}
	for _, line := range protocol.GridBlock(true, rows, true) {
		require.True(t, conn.Type(line))
	}
	for _, line := range protocol.GridBlock(false, rows[:2], false) {
		require.True(t, conn.Type(line))
	}

	ev := nextEvent(t, c, EventGrid)
	assert.True(t, ev.Grid.Self)
	assert.Equal(t, rows, ev.Grid.Rows)

	ev = nextEvent(t, c, EventGrid)
	assert.False(t, ev.Grid.Self)
	assert.Equal(t, rows[:2], ev.Grid.Rows)
}

func TestClient_AnswersSendID(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	conn := srv.next(t)

	require.Equal(t, "ID alice", sent(t, conn))

	require.True(t, conn.Type(framed(protocol.TypeCommand, protocol.CommandSendID)))
	assert.Equal(t, "ID alice", sent(t, conn))
}

func TestClient_ReconnectsDuringMatch(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	first := srv.next(t)

	require.True(t, first.Type(framed(protocol.TypeMessage, "Both players connected! Now set up your ships.")))
	nextEvent(t, c, EventPacket)
	assert.True(t, c.InMatch())

	srv.mu.Lock()
	srv.fail = 1
	srv.mu.Unlock()
	first.Hangup()

	ev := nextEvent(t, c, EventReconnecting)
	assert.Equal(t, 3, ev.MaxAttempts)
	nextEvent(t, c, EventReconnected)

	second := srv.next(t)
	assert.Equal(t, "ID alice", sent(t, second))
}

func TestClient_NoReconnectOutsideMatch(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	conn := srv.next(t)

	require.True(t, conn.Type(framed(protocol.TypeResult, protocol.ResultWin)))
	nextEvent(t, c, EventPacket)
	assert.False(t, c.InMatch())

	conn.Hangup()
	ev := nextEvent(t, c, EventClosed)
	assert.NoError(t, ev.Err)
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	srv := newFakeServer()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	conn := srv.next(t)

	require.True(t, conn.Type(framed(protocol.TypeMessage, "Welcome back! Reconnecting to your match...")))
	nextEvent(t, c, EventPacket)

	srv.mu.Lock()
	srv.fail = 10
	srv.mu.Unlock()
	conn.Hangup()

	ev := nextEvent(t, c, EventClosed)
	assert.Error(t, ev.Err)
	assert.False(t, c.IsReconnecting())
}

func TestClient_WebSocketDial(t *testing.T) {
	t.Parallel()
	upgrader := websocket.Upgrader{}
	got := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, msg, err := ws.ReadMessage()
		if err == nil {
			got <- string(msg)
		}
	}))
	t.Cleanup(ts.Close)

	c := NewClient("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", "bob")
	t.Cleanup(c.Close)
	require.NoError(t, c.Connect(context.Background()))

	select {
	case line := <-got:
		assert.Equal(t, "ID bob", line)
	case <-time.After(wait):
		t.Fatal("no identification received")
	}
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for range 50 {
		token := GenerateToken()
		assert.True(t, ValidToken(token), token)
		assert.Len(t, strings.Split(token, "-"), 3)
		seen[token] = true
	}
	assert.Greater(t, len(seen), 45)
	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken("two words"))
}
