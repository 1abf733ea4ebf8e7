// Package game 负责对局的全部流程：匹配调度、布舰、轮流开火、断线重连与观战广播
package game

import (
	"context"
	"time"

	"github.com/palemoky/battleship/internal/config"
	"github.com/palemoky/battleship/internal/game/board"
	"github.com/palemoky/battleship/internal/network/server/session"
	"github.com/palemoky/battleship/internal/network/server/storage"
	"github.com/palemoky/battleship/internal/transport"
)

// Board 对局使用的棋盘能力
type Board interface {
	CanPlace(row, col, size int, o board.Orientation) bool
	Place(name string, row, col, size int, o board.Orientation) ([]board.Cell, error)
	PlaceRandomly(fleet []board.ShipSpec)
	FireAt(row, col int) (board.Outcome, string)
	AllSunk() bool
	MaskedRows() []string
	FullRows() []string
}

// BoardFactory 每局开始时创建新棋盘
type BoardFactory func() Board

// Narrator 接收对局中值得播报的事件（观众广播）
type Narrator interface {
	Narrate(text string)
}

// StatsRecorder 记录对局结果
type StatsRecorder interface {
	RecordMatch(ctx context.Context, rec storage.MatchRecord) error
}

// Seat 一个玩家席位：排队时在就绪队列中，开局后归属唯一的对局
type Seat struct {
	Token   string
	Session *session.PlayerSession
	Board   Board

	peer *transport.Peer
}

// NewSeat 创建席位
func NewSeat(sess *session.PlayerSession, peer *transport.Peer) *Seat {
	return &Seat{Token: sess.Token, Session: sess, peer: peer}
}

// Peer 当前连接（重连后会被替换）
func (s *Seat) Peer() *transport.Peer {
	return s.peer
}

// Options 对局参数
type Options struct {
	TurnTimeout     time.Duration
	SetupTimeout    time.Duration
	ChoiceTimeout   time.Duration
	RematchTimeout  time.Duration
	RematchAttempts int
	ReconnectGrace  time.Duration
	ReconnectPoll   time.Duration
	Legacy          bool

	Fleet    []board.ShipSpec
	NewBoard BoardFactory
}

// OptionsFromConfig 从配置构造对局参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TurnTimeout:     cfg.Game.TurnTimeoutDuration(),
		SetupTimeout:    cfg.Game.SetupTimeoutDuration(),
		ChoiceTimeout:   cfg.Game.ChoiceTimeoutDuration(),
		RematchTimeout:  cfg.Game.RematchTimeoutDuration(),
		RematchAttempts: cfg.Game.RematchAttempts,
		ReconnectGrace:  cfg.Game.ReconnectGraceDuration(),
		ReconnectPoll:   cfg.Game.ReconnectPollInterval(),
		Legacy:          cfg.Server.Legacy,
	}
}

func (o *Options) withDefaults() {
	if len(o.Fleet) == 0 {
		o.Fleet = board.DefaultFleet
	}
	if o.NewBoard == nil {
		o.NewBoard = func() Board { return board.New() }
	}
	if o.RematchAttempts <= 0 {
		o.RematchAttempts = 3
	}
	if o.ReconnectPoll <= 0 {
		o.ReconnectPoll = 500 * time.Millisecond
	}
}
