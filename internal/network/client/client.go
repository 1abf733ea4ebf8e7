// Package client 海战终端客户端的网络层：连接、重连、棋盘块重组
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palemoky/battleship/internal/logger"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/transport"
)

const (
	// 最大重连次数
	maxReconnectAttempts = 5
	// 首次重连间隔
	reconnectInterval = 2 * time.Second
	// 退避上限
	maxBackoff = 30 * time.Second

	dialTimeout = 10 * time.Second
	eventBuffer = 256
)

// ErrClosed 客户端已关闭
var ErrClosed = errors.New("client closed")

// EventKind 客户端事件类型
type EventKind int

const (
	EventPacket       EventKind = iota // 服务端的一行消息
	EventGrid                          // 完整的棋盘块
	EventReconnecting                  // 正在重连
	EventReconnected                   // 重连成功（已重新上报身份）
	EventClosed                        // 连接结束，不再重连
)

// Grid 一个完整的棋盘块
type Grid struct {
	Self bool
	Rows []string
}

// Event 推送给界面的事件
type Event struct {
	Kind        EventKind
	Packet      protocol.Packet
	Grid        Grid
	Attempt     int
	MaxAttempts int
	Err         error
}

// DialFunc 建立一条行连接
type DialFunc func(ctx context.Context, addr string) (transport.LineConn, error)

// Client 行协议客户端；TCP 地址直接连接，ws:// 地址走 WebSocket 网关
type Client struct {
	Addr  string
	Token string

	dial        DialFunc
	backoff     time.Duration
	maxAttempts int

	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	peer   *transport.Peer
	closed bool

	inMatch      atomic.Bool
	reconnecting atomic.Bool
}

// Option 客户端选项
type Option func(*Client)

// WithDialer 替换拨号方式（测试使用）
func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// WithBackoff 设置首次重连间隔与最大次数
func WithBackoff(initial time.Duration, attempts int) Option {
	return func(c *Client) {
		c.backoff = initial
		c.maxAttempts = attempts
	}
}

// NewClient 创建客户端
func NewClient(addr, token string, opts ...Option) *Client {
	c := &Client{
		Addr:        addr,
		Token:       token,
		dial:        Dial,
		backoff:     reconnectInterval,
		maxAttempts: maxReconnectAttempts,
		events:      make(chan Event, eventBuffer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial 按地址选择 TCP 或 WebSocket
func Dial(ctx context.Context, addr string) (transport.LineConn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
		ws, resp, err := dialer.DialContext(ctx, addr, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return transport.NewWSConn(ws), nil
	}
	return transport.DialTCP(ctx, addr)
}

// Connect 连接服务器并上报身份
func (c *Client) Connect(ctx context.Context) error {
	peer, err := c.open(ctx)
	if err != nil {
		return err
	}
	go c.readLoop(peer)
	return nil
}

func (c *Client) open(ctx context.Context) (*transport.Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := c.dial(ctx, c.Addr)
	if err != nil {
		return nil, err
	}
	peer := transport.NewPeer(conn)
	if err := peer.Send(protocol.CmdIdentify + " " + c.Token); err != nil {
		peer.Close()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		peer.Close()
		return nil, ErrClosed
	}
	c.peer = peer
	return peer, nil
}

// Events 事件流，客户端关闭后不再有新事件
func (c *Client) Events() <-chan Event {
	return c.events
}

// Send 发送一行原始指令
func (c *Client) Send(line string) error {
	c.mu.RLock()
	peer, closed := c.peer, c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if peer == nil {
		return transport.ErrClosed
	}
	return peer.Send(strings.TrimSpace(line))
}

// Fire 向坐标开火
func (c *Client) Fire(coord string) error {
	return c.Send(protocol.CmdFire + " " + strings.ToUpper(strings.TrimSpace(coord)))
}

// Quit 认输并离开
func (c *Client) Quit() error {
	return c.Send(protocol.CmdQuit)
}

// InMatch 是否处于对局中（断线时只有对局中才自动重连）
func (c *Client) InMatch() bool {
	return c.inMatch.Load()
}

// IsReconnecting 是否正在重连
func (c *Client) IsReconnecting() bool {
	return c.reconnecting.Load()
}

// Close 关闭连接，可重复调用
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// emit 推送事件；客户端关闭后丢弃
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// readLoop 读取一条连接直到断开，随后决定是否重连
func (c *Client) readLoop(peer *transport.Peer) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			log.Printf("[PANIC] readLoop panic recovered: %v", r)
			c.finish(fmt.Errorf("internal error: %v", r))
		}
	}()

	var asm gridAssembler
	for {
		select {
		case line := <-peer.Lines():
			c.handleLine(&asm, line)
			continue
		case <-peer.Done():
		}

		// 断开前已缓冲的行仍然要处理
		for n := len(peer.Lines()); n > 0; n-- {
			c.handleLine(&asm, <-peer.Lines())
		}
		break
	}

	if c.isClosed() {
		c.finish(nil)
		return
	}
	if !c.inMatch.Load() {
		c.finish(peer.Err())
		return
	}
	c.tryReconnect()
}

// handleLine 解析一行：棋盘块重组、自动应答 SEND-ID、跟踪对局状态
func (c *Client) handleLine(asm *gridAssembler, line string) {
	if grid, ok := asm.feed(line); ok {
		c.inMatch.Store(true)
		c.emit(Event{Kind: EventGrid, Grid: grid})
		return
	}
	if asm.active() {
		return
	}

	pkt := parseLine(line)
	switch pkt.Type {
	case protocol.TypeControl:
		// 服务端探活，无需回应
		return
	case protocol.TypeCommand:
		if pkt.Payload == protocol.CommandSendID {
			if err := c.Send(protocol.CmdIdentify + " " + c.Token); err != nil {
				log.Printf("上报身份失败: %v", err)
			}
		}
	case protocol.TypeResult:
		switch pkt.Payload {
		case protocol.ResultWin, protocol.ResultLose, protocol.ResultForfeit:
			c.inMatch.Store(false)
		}
	case protocol.TypeMessage:
		if strings.HasPrefix(pkt.Payload, "Both players connected!") ||
			strings.HasPrefix(pkt.Payload, "Welcome back!") {
			c.inMatch.Store(true)
		}
	}
	c.emit(Event{Kind: EventPacket, Packet: pkt})
}

// parseLine 先按帧解析，再尝试旧版 "RESULT WIN" 形式
func parseLine(line string) protocol.Packet {
	pkt := protocol.Parse(line)
	if pkt.Framed {
		return pkt
	}
	if legacy, ok := protocol.ParseLegacy(line); ok {
		return legacy
	}
	return pkt
}

// tryReconnect 指数退避重连，成功后重新上报身份
func (c *Client) tryReconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	backoff := c.backoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.emit(Event{Kind: EventReconnecting, Attempt: attempt, MaxAttempts: c.maxAttempts})
		log.Printf("🔄 尝试重连 (%d/%d)...", attempt, c.maxAttempts)

		select {
		case <-time.After(backoff):
		case <-c.done:
			c.reconnecting.Store(false)
			c.finish(nil)
			return
		}
		backoff = min(backoff*2, maxBackoff)

		peer, err := c.open(context.Background())
		if err != nil {
			if errors.Is(err, ErrClosed) {
				c.reconnecting.Store(false)
				c.finish(nil)
				return
			}
			log.Printf("重连失败: %v", err)
			continue
		}

		log.Printf("✅ 重连成功")
		c.reconnecting.Store(false)
		c.emit(Event{Kind: EventReconnected})
		go c.readLoop(peer)
		return
	}

	log.Printf("❌ 重连失败，已达最大尝试次数")
	c.reconnecting.Store(false)
	c.finish(errors.New("reconnect attempts exhausted"))
}

// finish 推送结束事件；事件通道保持打开，由 done 通知读者
func (c *Client) finish(err error) {
	// 正常断开不算错误
	if transport.IsClosed(err) {
		err = nil
	}
	select {
	case c.events <- Event{Kind: EventClosed, Err: err}:
	default:
		log.Printf("事件缓冲已满，丢弃结束事件")
	}
}

// gridAssembler 把 "GRID…" 哨兵行到空行之间的内容合成一个棋盘块
type gridAssembler struct {
	collecting bool
	self       bool
	rows       []string
}

func (a *gridAssembler) active() bool {
	return a.collecting
}

// feed 返回 ok=true 表示一个棋盘块已完整
func (a *gridAssembler) feed(line string) (Grid, bool) {
	if !a.collecting {
		if start, self := protocol.IsGridStart(line); start {
			a.collecting, a.self, a.rows = true, self, nil
		}
		return Grid{}, false
	}

	if strings.TrimRight(line, "\r\n") == protocol.GridEnd {
		grid := Grid{Self: a.self, Rows: a.rows}
		a.collecting, a.rows = false, nil
		return grid, true
	}
	a.rows = append(a.rows, line)
	return Grid{}, false
}
