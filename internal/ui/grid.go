package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/palemoky/battleship/internal/game/board"
)

// renderCell 按格子符号着色
func renderCell(r rune) string {
	s := string(r)
	switch r {
	case board.CellWater:
		return waterStyle.Render(s)
	case board.CellShip:
		return shipStyle.Render(s)
	case board.CellHit:
		return hitStyle.Render(s)
	case board.CellMiss:
		return missStyle.Render(s)
	}
	return s
}

// RenderGrid 渲染一个棋盘块：首行是列号，其余行首字符是行号
func RenderGrid(title string, rows []string, active bool) string {
	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if i == 0 {
			sb.WriteString(headerStyle.Render(row))
			continue
		}
		for j, r := range row {
			if j == 0 {
				sb.WriteString(headerStyle.Render(string(r)))
				continue
			}
			sb.WriteString(renderCell(r))
		}
	}
	if len(rows) == 0 {
		sb.WriteString(statusStyle.Render("(no board yet)"))
	}

	style := boxStyle
	if active {
		style = activeBox
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle(title), sb.String()))
}

// PlainGrid 无颜色的棋盘块，用于行模式
func PlainGrid(title string, rows []string) string {
	return title + "\n" + strings.Join(rows, "\n")
}
