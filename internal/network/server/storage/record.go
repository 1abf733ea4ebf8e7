package storage

import (
	"errors"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// 结束原因
const (
	ReasonSunk       = "sunk"       // 击沉全部舰船
	ReasonForfeit    = "forfeit"    // 主动认输
	ReasonSetup      = "setup"      // 布舰阶段掉线或超时
	ReasonDisconnect = "disconnect" // 宽限期内未重连
)

// MatchRecord 一局对战记录
type MatchRecord struct {
	MatchID string
	Round   int
	Winner  string
	Loser   string
	Reason  string
	Shots   int
	EndedAt time.Time
}

// 字段编号
const (
	fieldMatchID protowire.Number = 1
	fieldRound   protowire.Number = 2
	fieldWinner  protowire.Number = 3
	fieldLoser   protowire.Number = 4
	fieldReason  protowire.Number = 5
	fieldShots   protowire.Number = 6
	fieldEndedAt protowire.Number = 7
)

var errMalformedRecord = errors.New("storage: malformed match record")

// Marshal 以 protobuf wire 格式编码
func (r *MatchRecord) Marshal() []byte {
	var b []byte
	b = appendString(b, fieldMatchID, r.MatchID)
	b = appendVarint(b, fieldRound, uint64(r.Round))
	b = appendString(b, fieldWinner, r.Winner)
	b = appendString(b, fieldLoser, r.Loser)
	b = appendString(b, fieldReason, r.Reason)
	b = appendVarint(b, fieldShots, uint64(r.Shots))
	if !r.EndedAt.IsZero() {
		b = appendVarint(b, fieldEndedAt, uint64(r.EndedAt.UnixMilli()))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// UnmarshalMatchRecord 解码；未知字段被跳过
func UnmarshalMatchRecord(b []byte) (MatchRecord, error) {
	var r MatchRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return MatchRecord{}, errMalformedRecord
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && isStringField(num):
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return MatchRecord{}, errMalformedRecord
			}
			b = b[n:]
			switch num {
			case fieldMatchID:
				r.MatchID = s
			case fieldWinner:
				r.Winner = s
			case fieldLoser:
				r.Loser = s
			case fieldReason:
				r.Reason = s
			}
		case typ == protowire.VarintType && isVarintField(num):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return MatchRecord{}, errMalformedRecord
			}
			b = b[n:]
			switch num {
			case fieldRound:
				r.Round = int(v)
			case fieldShots:
				r.Shots = int(v)
			case fieldEndedAt:
				r.EndedAt = time.UnixMilli(int64(v))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return MatchRecord{}, errMalformedRecord
			}
			b = b[n:]
		}
	}
	return r, nil
}

func isStringField(num protowire.Number) bool {
	return num == fieldMatchID || num == fieldWinner || num == fieldLoser || num == fieldReason
}

func isVarintField(num protowire.Number) bool {
	return num == fieldRound || num == fieldShots || num == fieldEndedAt
}
