package transport

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn 基于 gorilla/websocket 的行连接：每个文本帧为一行
type WSConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// NewWSConn 包装一个已升级的 WebSocket 连接
func NewWSConn(conn *websocket.Conn) *WSConn {
	conn.SetReadLimit(maxLineSize)
	return &WSConn{conn: conn}
}

// ReadLine 读取下一帧文本；跳过非文本帧
func (c *WSConn) ReadLine() (string, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

// WriteLine 以单个文本帧发送一行
func (c *WSConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close 发送关闭帧后关闭底层连接
func (c *WSConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// RemoteAddr 对端地址
func (c *WSConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
