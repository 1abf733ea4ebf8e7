// Package protocol 定义行式文本协议：帧格式 "<type>|<checksum>|<payload>"
package protocol

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/palemoky/battleship/internal/protocol/codec"
)

// PacketType 包类型
type PacketType int

const (
	TypeMessage PacketType = 1 // 自由文本通知
	TypeCommand PacketType = 2 // 指令/提示
	TypeResult  PacketType = 3 // 动作结果
	TypeControl PacketType = 4 // 控制（心跳等）
)

// ChecksumWidth 校验字段固定宽度（CRC32 的 8 位十六进制）
const ChecksumWidth = 8

const delimiter = "|"

// ErrInvalidPayload payload 含有行终止符
var ErrInvalidPayload = errors.New("protocol: payload must not contain line terminators")

func (t PacketType) String() string {
	switch t {
	case TypeMessage:
		return "MESSAGE"
	case TypeCommand:
		return "COMMAND"
	case TypeResult:
		return "RESULT"
	case TypeControl:
		return "CONTROL"
	default:
		return "TYPE" + strconv.Itoa(int(t))
	}
}

// Valid 是否为已知的包类型
func (t PacketType) Valid() bool {
	return t >= TypeMessage && t <= TypeControl
}

// ParseType 解析旧版文本前缀（"RESULT" 等）
func ParseType(name string) (PacketType, bool) {
	switch strings.ToUpper(name) {
	case "MESSAGE":
		return TypeMessage, true
	case "COMMAND":
		return TypeCommand, true
	case "RESULT":
		return TypeResult, true
	case "CONTROL":
		return TypeControl, true
	}
	return 0, false
}

// Packet 一行协议数据
type Packet struct {
	Type     PacketType
	Checksum string
	Payload  string
	Framed   bool // false 表示按旧版无帧文本解析
}

// Checksum 计算 payload 的 CRC32 校验值
func Checksum(payload string) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(payload)))
}

// Encode 编码为单行帧（不含换行符）
func Encode(t PacketType, payload string) (string, error) {
	if strings.ContainsAny(payload, "\r\n") {
		return "", ErrInvalidPayload
	}

	buf := codec.GetBuffer()
	defer codec.PutBuffer(buf)

	buf.WriteString(strconv.Itoa(int(t)))
	buf.WriteString(delimiter)
	buf.WriteString(Checksum(payload))
	buf.WriteString(delimiter)
	buf.WriteString(payload)
	return buf.String(), nil
}

// MustEncode 编码失败时 panic
func MustEncode(t PacketType, payload string) string {
	line, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return line
}

// Decode 解析帧；字段数不对、类型非整数或校验失败时返回 ok=false
func Decode(line string) (Packet, bool) {
	line = strings.TrimRight(line, "\r\n")

	parts := strings.SplitN(line, delimiter, 3)
	if len(parts) != 3 {
		return Packet{}, false
	}

	typ, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Packet{}, false
	}

	checksum, payload := parts[1], parts[2]
	if len(checksum) != ChecksumWidth || !strings.EqualFold(checksum, Checksum(payload)) {
		return Packet{}, false
	}

	return Packet{
		Type:     PacketType(typ),
		Checksum: checksum,
		Payload:  payload,
		Framed:   true,
	}, true
}

// Parse 解析一行输入；无法识别为帧时按旧版文本处理
func Parse(line string) Packet {
	if pkt, ok := Decode(line); ok {
		return pkt
	}
	return Packet{
		Type:    TypeMessage,
		Payload: strings.TrimSpace(line),
	}
}

// Format 按帧模式或旧版文本模式渲染一行输出
func Format(t PacketType, payload string, framed bool) string {
	payload = sanitize(payload)
	if framed {
		return MustEncode(t, payload)
	}
	if payload == "" {
		return t.String()
	}
	return t.String() + " " + payload
}

// ParseLegacy 识别旧版 "RESULT WIN" 形式的行，首词不是类型名时返回 ok=false
func ParseLegacy(line string) (Packet, bool) {
	line = strings.TrimSpace(line)
	name, rest, _ := strings.Cut(line, " ")
	t, ok := ParseType(name)
	if !ok {
		return Packet{}, false
	}
	return Packet{Type: t, Payload: strings.TrimSpace(rest)}, true
}

func sanitize(payload string) string {
	if !strings.ContainsAny(payload, "\r\n") {
		return payload
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(payload)
}
