package sound

import (
	"strings"

	"github.com/palemoky/battleship/internal/protocol"
)

// 音效名
const (
	Hit  = "hit"
	Miss = "miss"
	Sunk = "sunk"
	Win  = "win"
	Lose = "lose"
	Turn = "turn"
)

// ForPacket 服务端消息对应的音效，没有时返回空字符串
func ForPacket(pkt protocol.Packet) string {
	switch pkt.Type {
	case protocol.TypeResult:
		switch {
		case pkt.Payload == protocol.ResultWin:
			return Win
		case pkt.Payload == protocol.ResultLose, pkt.Payload == protocol.ResultForfeit:
			return Lose
		case pkt.Payload == protocol.ResultHit:
			return Hit
		case strings.HasPrefix(pkt.Payload, protocol.ResultHit+" "):
			return Sunk
		case pkt.Payload == protocol.ResultMiss:
			return Miss
		}
	case protocol.TypeCommand:
		if pkt.Payload == protocol.CommandYourTurn {
			return Turn
		}
	}
	return ""
}
