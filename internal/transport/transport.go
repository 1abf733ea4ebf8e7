// Package transport 提供按行收发的连接抽象（TCP 与 WebSocket），以及带读协程的 Peer
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/gorilla/websocket"
)

const (
	// 单行最大长度
	maxLineSize = 4096
)

var (
	ErrTimeout     = errors.New("transport: read timed out")
	ErrClosed      = errors.New("transport: connection closed")
	ErrLineTooLong = errors.New("transport: line too long")
)

// LineConn 按行读写的连接；ReadLine 返回的行不含行终止符
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

// Kind 连接错误分类
type Kind int

const (
	KindNone     Kind = iota
	KindTimeout       // 读超时，连接仍可用
	KindClosed        // 对端已断开或本端已关闭
	KindCanceled      // 上层 context 取消
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	case KindCanceled:
		return "canceled"
	}
	return "other"
}

// Classify 把底层错误归类为超时 / 断开 / 取消
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, ErrLineTooLong) {
		return KindClosed
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return KindClosed
	}
	return KindOther
}

// IsClosed 是否属于断开类错误
func IsClosed(err error) bool {
	return Classify(err) == KindClosed
}
