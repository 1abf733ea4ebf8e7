// Package board 实现 10×10 海战棋盘：布舰、开火与视图
package board

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Size 棋盘边长
const Size = 10

// Orientation 舰船朝向
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

// ParseOrientation 解析 "H"/"V"
func ParseOrientation(s string) (Orientation, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H":
		return Horizontal, true
	case "V":
		return Vertical, true
	}
	return 0, false
}

// Outcome 开火结果
type Outcome int

const (
	Miss Outcome = iota
	Hit
	AlreadyShot
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case AlreadyShot:
		return "already_shot"
	}
	return "unknown"
}

// 棋盘格显示符号
const (
	CellWater = '.'
	CellShip  = 'S'
	CellHit   = 'X'
	CellMiss  = 'o'
)

var (
	ErrBadCoordinate = errors.New("board: malformed coordinate")
	ErrOutOfBounds   = errors.New("board: coordinate out of bounds")
	ErrCannotPlace   = errors.New("board: ship cannot be placed there")
)

// ShipSpec 舰船规格
type ShipSpec struct {
	Name string
	Size int
}

// DefaultFleet 标准舰队
var DefaultFleet = []ShipSpec{
	{Name: "Carrier", Size: 5},
	{Name: "Battleship", Size: 4},
	{Name: "Cruiser", Size: 3},
	{Name: "Submarine", Size: 3},
	{Name: "Destroyer", Size: 2},
}

// Cell 坐标
type Cell struct {
	Row int
	Col int
}

// String 渲染为 "B5" 形式
func (c Cell) String() string {
	return string(rune('A'+c.Row)) + strconv.Itoa(c.Col+1)
}

// Ship 已布置的舰船
type Ship struct {
	Name  string
	Cells []Cell
	hits  map[Cell]bool
}

// Sunk 是否已被击沉
func (s *Ship) Sunk() bool {
	return len(s.hits) == len(s.Cells)
}

// Board 单个玩家的棋盘
type Board struct {
	ships  []*Ship
	owner  [Size][Size]*Ship
	shots  [Size][Size]bool
	random *rand.Rand
}

// New 创建空棋盘
func New() *Board {
	return &Board{}
}

// NewWithRand 使用指定随机源创建棋盘（测试用）
func NewWithRand(r *rand.Rand) *Board {
	return &Board{random: r}
}

// ParseCoordinate 解析 "B5" 形式的坐标为 (row, col)，不检查边界
func ParseCoordinate(s string) (row, col int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	letter := s[0]
	if letter < 'A' || letter > 'Z' {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	digits := s[1:]
	// 不接受前导零（A01、A00010）
	if len(digits) > 1 && digits[0] == '0' {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || digits[0] == '+' || digits[0] == '-' {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	return int(letter - 'A'), n - 1, nil
}

// InBounds 坐标是否在棋盘内
func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// ParseCell 解析并检查边界
func ParseCell(s string) (Cell, error) {
	row, col, err := ParseCoordinate(s)
	if err != nil {
		return Cell{}, err
	}
	if !InBounds(row, col) {
		return Cell{}, fmt.Errorf("%w: %q", ErrOutOfBounds, s)
	}
	return Cell{Row: row, Col: col}, nil
}

func span(row, col, size int, o Orientation) []Cell {
	cells := make([]Cell, 0, size)
	for i := range size {
		if o == Horizontal {
			cells = append(cells, Cell{Row: row, Col: col + i})
		} else {
			cells = append(cells, Cell{Row: row + i, Col: col})
		}
	}
	return cells
}

// CanPlace 检查舰船能否放在指定位置（不越界、不重叠）
func (b *Board) CanPlace(row, col, size int, o Orientation) bool {
	if size <= 0 {
		return false
	}
	for _, c := range span(row, col, size, o) {
		if !InBounds(c.Row, c.Col) || b.owner[c.Row][c.Col] != nil {
			return false
		}
	}
	return true
}

// Place 布置舰船，返回占用的格子
func (b *Board) Place(name string, row, col, size int, o Orientation) ([]Cell, error) {
	if !b.CanPlace(row, col, size, o) {
		return nil, ErrCannotPlace
	}
	ship := &Ship{Name: name, Cells: span(row, col, size, o), hits: make(map[Cell]bool)}
	for _, c := range ship.Cells {
		b.owner[c.Row][c.Col] = ship
	}
	b.ships = append(b.ships, ship)
	return ship.Cells, nil
}

// PlaceRandomly 随机布置整支舰队，不会失败
func (b *Board) PlaceRandomly(fleet []ShipSpec) {
	for _, ship := range fleet {
		for {
			o := Orientation(b.intN(2))
			row, col := b.intN(Size), b.intN(Size)
			if _, err := b.Place(ship.Name, row, col, ship.Size, o); err == nil {
				break
			}
		}
	}
}

func (b *Board) intN(n int) int {
	if b.random != nil {
		return b.random.IntN(n)
	}
	return rand.IntN(n)
}

// FireAt 向 (row, col) 开火；命中且该舰沉没时返回舰名
func (b *Board) FireAt(row, col int) (Outcome, string) {
	if !InBounds(row, col) {
		return Miss, ""
	}
	if b.shots[row][col] {
		return AlreadyShot, ""
	}
	b.shots[row][col] = true

	ship := b.owner[row][col]
	if ship == nil {
		return Miss, ""
	}
	ship.hits[Cell{Row: row, Col: col}] = true
	if ship.Sunk() {
		return Hit, ship.Name
	}
	return Hit, ""
}

// AllSunk 是否全部舰船被击沉
func (b *Board) AllSunk() bool {
	if len(b.ships) == 0 {
		return false
	}
	for _, s := range b.ships {
		if !s.Sunk() {
			return false
		}
	}
	return true
}

// Ships 已布置的舰船
func (b *Board) Ships() []*Ship {
	return b.ships
}

func (b *Board) cell(row, col int, reveal bool) byte {
	ship := b.owner[row][col]
	switch {
	case b.shots[row][col] && ship != nil:
		return CellHit
	case b.shots[row][col]:
		return CellMiss
	case reveal && ship != nil:
		return CellShip
	}
	return CellWater
}

func (b *Board) rows(reveal bool) []string {
	var sb strings.Builder
	sb.WriteString("  ")
	for c := range Size {
		sb.WriteString(fmt.Sprintf(" %2d", c+1))
	}
	out := []string{sb.String()}

	for r := range Size {
		sb.Reset()
		sb.WriteByte(byte('A' + r))
		sb.WriteByte(' ')
		for c := range Size {
			sb.WriteString("  ")
			sb.WriteByte(b.cell(r, c, reveal))
		}
		out = append(out, sb.String())
	}
	return out
}

// MaskedRows 对手视角：只显示命中与落空
func (b *Board) MaskedRows() []string {
	return b.rows(false)
}

// FullRows 自己视角：显示全部舰船
func (b *Board) FullRows() []string {
	return b.rows(true)
}
