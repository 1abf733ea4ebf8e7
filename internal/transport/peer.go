package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palemoky/battleship/internal/logger"
)

const (
	// 读协程缓冲的行数
	inboundBuffer = 64
	// 异步发送队列长度，满了说明对端读得太慢
	outboundBuffer = 32
)

// Peer 一条已接入的连接：独占一个读协程，把收到的行送进 channel
type Peer struct {
	ID string

	conn  LineConn
	lines chan string
	done  chan struct{}

	out     chan string
	outOnce sync.Once

	closeOnce sync.Once
	mu        sync.RWMutex
	readErr   error
}

// NewPeer 包装连接并启动读协程
func NewPeer(conn LineConn) *Peer {
	p := &Peer{
		ID:    uuid.New().String(),
		conn:  conn,
		lines: make(chan string, inboundBuffer),
		done:  make(chan struct{}),
	}
	go p.readPump()
	return p
}

func (p *Peer) readPump() {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			log.Printf("[PANIC] readPump panic recovered: %v", r)
		}
		p.Close()
	}()

	for {
		line, err := p.conn.ReadLine()
		if err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			return
		}
		select {
		case p.lines <- line:
		case <-p.done:
			return
		}
	}
}

// Lines 收到的行
func (p *Peer) Lines() <-chan string {
	return p.lines
}

// Done 连接关闭时关闭
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Alive 连接是否仍然可用
func (p *Peer) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Err 读协程退出的原因
func (p *Peer) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readErr
}

// ReadLine 等待下一行；timeout <= 0 表示不限时
func (p *Peer) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case line := <-p.lines:
		return line, nil
	case <-p.done:
		// 关闭前已缓冲的行仍然有效
		select {
		case line := <-p.lines:
			return line, nil
		default:
			return "", ErrClosed
		}
	case <-expired:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Drain 丢弃已缓冲但未处理的行
func (p *Peer) Drain() int {
	n := 0
	for {
		select {
		case <-p.lines:
			n++
		default:
			return n
		}
	}
}

// Send 写入一行；写失败时关闭连接并返回 ErrClosed
func (p *Peer) Send(line string) error {
	if !p.Alive() {
		return ErrClosed
	}
	if err := p.conn.WriteLine(line); err != nil {
		p.Close()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// TrySend 把一行放进异步发送队列，不阻塞调用方。
// 队列满或连接已关闭时返回 false；写协程遇到写错误会关闭连接。
func (p *Peer) TrySend(line string) bool {
	if !p.Alive() {
		return false
	}
	p.outOnce.Do(func() {
		p.out = make(chan string, outboundBuffer)
		go p.writePump()
	})
	select {
	case p.out <- line:
		return true
	default:
		return false
	}
}

func (p *Peer) writePump() {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			log.Printf("[PANIC] writePump panic recovered: %v", r)
			p.Close()
		}
	}()

	for {
		select {
		case line := <-p.out:
			if err := p.conn.WriteLine(line); err != nil {
				p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// SendAll 依次写入多行，遇错即止
func (p *Peer) SendAll(lines ...string) error {
	for _, line := range lines {
		if err := p.Send(line); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭连接，可重复调用
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// RemoteAddr 对端地址
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr()
}
