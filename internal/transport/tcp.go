package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// 写入超时
const writeWait = 10 * time.Second

// TCPConn 基于 bufio 的 TCP 行连接
type TCPConn struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
}

// NewTCPConn 包装一个 net.Conn
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, maxLineSize),
	}
}

// DialTCP 连接服务器
func DialTCP(ctx context.Context, addr string) (*TCPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewTCPConn(conn), nil
}

// ReadLine 读取一行；连接在行中途关闭时返回已读到的部分
func (c *TCPConn) ReadLine() (string, error) {
	line, err := c.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		// 超长行视为非法连接
		return "", ErrLineTooLong
	}
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimRight(string(line), "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// WriteLine 写入一行，自动追加换行符
func (c *TCPConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// Close 关闭连接
func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr 对端地址
func (c *TCPConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
