package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"timeout sentinel", ErrTimeout, KindTimeout},
		{"deadline", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), KindTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, KindTimeout},
		{"eof", io.EOF, KindClosed},
		{"closed sentinel", fmt.Errorf("send: %w", ErrClosed), KindClosed},
		{"net closed", net.ErrClosed, KindClosed},
		{"pipe closed", io.ErrClosedPipe, KindClosed},
		{"too long", ErrLineTooLong, KindClosed},
		{"ws close", &websocket.CloseError{Code: websocket.CloseGoingAway}, KindClosed},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
	assert.True(t, IsClosed(io.EOF))
	assert.Equal(t, "timeout", KindTimeout.String())
}

// pipePeer 返回服务端 Peer 与客户端一侧的连接
func pipePeer(t *testing.T) (*Peer, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	p := NewPeer(NewTCPConn(server))
	t.Cleanup(func() {
		p.Close()
		_ = client.Close()
	})
	return p, client
}

func TestTCPConn_ReadLine(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	conn := NewTCPConn(server)

	go func() {
		_, _ = io.WriteString(client, "ID alice\r\nFIRE B5\npartial")
		_ = client.Close()
	}()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "ID alice", line)

	line, err = conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "FIRE B5", line)

	line, err = conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "partial", line)

	_, err = conn.ReadLine()
	assert.Equal(t, KindClosed, Classify(err))
}

func TestTCPConn_LineTooLong(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	conn := NewTCPConn(server)

	go func() {
		_, _ = io.WriteString(client, strings.Repeat("x", maxLineSize+10)+"\n")
	}()

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestPeer_ReadLine(t *testing.T) {
	t.Parallel()

	p, client := pipePeer(t)
	assert.NotEmpty(t, p.ID)

	go func() { _, _ = io.WriteString(client, "hello\n") }()

	line, err := p.ReadLine(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	_, err = p.ReadLine(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ReadLine(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPeer_BufferedLineSurvivesClose(t *testing.T) {
	t.Parallel()

	p, client := pipePeer(t)

	_, err := io.WriteString(client, "quit\n")
	require.NoError(t, err)
	_ = client.Close()

	require.Eventually(t, func() bool { return !p.Alive() }, time.Second, 5*time.Millisecond)

	line, err := p.ReadLine(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "quit", line)

	_, err = p.ReadLine(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, KindClosed, Classify(p.Err()))
}

func TestPeer_Send(t *testing.T) {
	t.Parallel()

	p, client := pipePeer(t)
	r := bufio.NewReader(client)

	go func() { _ = p.SendAll("1|abc|x", "second") }()

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "1|abc|x\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "second\n", line)

	_ = client.Close()
	require.Eventually(t, func() bool { return !p.Alive() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, p.Send("late"), ErrClosed)
}

func TestPeer_Drain(t *testing.T) {
	t.Parallel()

	p, client := pipePeer(t)
	_, err := io.WriteString(client, "a\nb\nc\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(p.Lines()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, p.Drain())
	assert.Equal(t, 0, p.Drain())
}

func TestPeer_CloseIdempotent(t *testing.T) {
	t.Parallel()

	p, _ := pipePeer(t)
	p.Close()
	p.Close()
	assert.False(t, p.Alive())
	select {
	case <-p.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestPeer_TrySendKeepsOrder(t *testing.T) {
	t.Parallel()

	p, client := pipePeer(t)
	r := bufio.NewReader(client)

	require.True(t, p.TrySend("one"))
	require.True(t, p.TrySend("two"))

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "one\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "two\n", line)
}

func TestPeer_TrySendNeverBlocksOnStalledReader(t *testing.T) {
	t.Parallel()

	// 客户端一端始终不读，写协程卡在第一行上
	p, _ := pipePeer(t)

	start := time.Now()
	accepted := 0
	for i := 0; i < outboundBuffer*2; i++ {
		if p.TrySend(fmt.Sprintf("line %d", i)) {
			accepted++
		}
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Less(t, accepted, outboundBuffer*2)
	assert.GreaterOrEqual(t, accepted, outboundBuffer)

	p.Close()
	assert.False(t, p.TrySend("late"))
}
