package protocol

// GridBlock 渲染棋盘块：哨兵行 + 棋盘行 + 空行结束
func GridBlock(self bool, rows []string, framed bool) []string {
	lines := make([]string, 0, len(rows)+2)

	switch {
	case self && framed:
		lines = append(lines, Format(TypeMessage, GridSelf, true))
	case self:
		lines = append(lines, GridSelf)
	case framed:
		lines = append(lines, Format(TypeMessage, GridOpponent, true))
	default:
		lines = append(lines, GridOpponentLegacy)
	}

	lines = append(lines, rows...)
	lines = append(lines, GridEnd)
	return lines
}

// IsGridStart 判断一行是否为棋盘块的开始，返回是否为自己的棋盘
func IsGridStart(line string) (start, self bool) {
	switch line {
	case GridSelf:
		return true, true
	case GridOpponentLegacy, GridOpponent:
		return true, false
	}
	if pkt, ok := Decode(line); ok && pkt.Type == TypeMessage {
		switch pkt.Payload {
		case GridSelf:
			return true, true
		case GridOpponent:
			return true, false
		}
	}
	return false, false
}
