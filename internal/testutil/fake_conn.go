//go:build !production

package testutil

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/palemoky/battleship/internal/protocol"
)

// DefaultWait 测试中等待服务端输出的默认时长
const DefaultWait = 2 * time.Second

var errOutboxFull = errors.New("fake conn: outbox full")

// FakeConn 内存中的行连接，实现 transport.LineConn。
// 服务端一侧调用 ReadLine/WriteLine，测试一侧调用 Type/Next/WaitFor。
type FakeConn struct {
	addr   string
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once

	failWrites atomic.Bool

	mu      sync.Mutex
	history []string
}

// NewFakeConn 创建内存连接
func NewFakeConn(addr string) *FakeConn {
	return &FakeConn{
		addr:   addr,
		in:     make(chan string, 64),
		out:    make(chan string, 4096),
		closed: make(chan struct{}),
	}
}

// ReadLine 服务端读取客户端输入
func (c *FakeConn) ReadLine() (string, error) {
	select {
	case line := <-c.in:
		return line, nil
	default:
	}
	select {
	case line := <-c.in:
		return line, nil
	case <-c.closed:
		return "", io.EOF
	}
}

// WriteLine 服务端写出
func (c *FakeConn) WriteLine(line string) error {
	if c.Closed() {
		return net.ErrClosed
	}
	if c.failWrites.Load() {
		return io.ErrClosedPipe
	}
	select {
	case c.out <- line:
		return nil
	default:
		return errOutboxFull
	}
}

// Close 关闭连接，可重复调用
func (c *FakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// RemoteAddr 对端地址
func (c *FakeConn) RemoteAddr() string {
	return c.addr
}

// Closed 连接是否已关闭
func (c *FakeConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// FailWrites 之后的写入全部失败（模拟对端已断开但未察觉）
func (c *FakeConn) FailWrites() {
	c.failWrites.Store(true)
}

// Type 模拟客户端输入若干行；连接已关闭时返回 false
func (c *FakeConn) Type(lines ...string) bool {
	for _, line := range lines {
		select {
		case c.in <- line:
		case <-c.closed:
			return false
		}
	}
	return true
}

// Hangup 模拟客户端断开
func (c *FakeConn) Hangup() {
	_ = c.Close()
}

// Next 读取服务端下一行输出
func (c *FakeConn) Next(timeout time.Duration) (protocol.Packet, bool) {
	select {
	case line := <-c.out:
		c.mu.Lock()
		c.history = append(c.history, line)
		c.mu.Unlock()
		return protocol.Parse(line), true
	case <-time.After(timeout):
		return protocol.Packet{}, false
	}
}

// WaitFor 跳过不匹配的行，直到 match 返回 true；超时则测试失败
func (c *FakeConn) WaitFor(tb testing.TB, match func(protocol.Packet) bool) protocol.Packet {
	tb.Helper()
	deadline := time.Now().Add(DefaultWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			tb.Fatalf("%s: timed out waiting for output; received so far:\n%s", c.addr, strings.Join(c.History(), "\n"))
			return protocol.Packet{}
		}
		pkt, ok := c.Next(remaining)
		if ok && match(pkt) {
			return pkt
		}
	}
}

// WaitPayload 等待 payload 含有 substr 的一行
func (c *FakeConn) WaitPayload(tb testing.TB, substr string) protocol.Packet {
	tb.Helper()
	return c.WaitFor(tb, func(p protocol.Packet) bool {
		return strings.Contains(p.Payload, substr)
	})
}

// WaitResult 等待一条 RESULT 包
func (c *FakeConn) WaitResult(tb testing.TB) protocol.Packet {
	tb.Helper()
	return c.WaitFor(tb, func(p protocol.Packet) bool {
		return p.Type == protocol.TypeResult
	})
}

// WaitCommand 等待指定 COMMAND 包
func (c *FakeConn) WaitCommand(tb testing.TB, cmd string) protocol.Packet {
	tb.Helper()
	return c.WaitFor(tb, func(p protocol.Packet) bool {
		return p.Type == protocol.TypeCommand && strings.HasPrefix(p.Payload, cmd)
	})
}

// Quiet 在 d 内没有匹配的输出时返回 true
func (c *FakeConn) Quiet(d time.Duration, match func(protocol.Packet) bool) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		pkt, ok := c.Next(remaining)
		if !ok {
			return true
		}
		if match(pkt) {
			return false
		}
	}
}

// History 已被测试读取的全部输出
func (c *FakeConn) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}
