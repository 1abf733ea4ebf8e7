package game

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/transport"
)

// Spectator 观战连接；写失败或积压过多后标记为 dead，由维护协程移除
type Spectator struct {
	Token string
	Peer  *transport.Peer

	dead atomic.Bool
}

// Dead 是否已失效
func (s *Spectator) Dead() bool {
	return s.dead.Load() || !s.Peer.Alive()
}

// Broadcaster 观众列表与尽力而为的广播
type Broadcaster struct {
	mu     sync.Mutex
	list   []*Spectator
	legacy bool
}

// NewBroadcaster 创建广播器
func NewBroadcaster(legacy bool) *Broadcaster {
	return &Broadcaster{legacy: legacy}
}

// Add 追加观众到队尾
func (b *Broadcaster) Add(token string, peer *transport.Peer) *Spectator {
	s := &Spectator{Token: token, Peer: peer}
	b.PushBack(s)
	return s
}

// PushBack 把观众放回队尾（晋升失败时）
func (b *Broadcaster) PushBack(s *Spectator) {
	b.mu.Lock()
	b.list = append(b.list, s)
	b.mu.Unlock()
}

// PopFront 取出最早的存活观众，没有时返回 nil
func (b *Broadcaster) PopFront() *Spectator {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.list) > 0 {
		s := b.list[0]
		b.list[0] = nil
		b.list = b.list[1:]
		if !s.Dead() {
			return s
		}
		s.Peer.Close()
	}
	return nil
}

// Narrate 向全部观众投递一条消息，只入队不等待写完；
// 发送队列已满的观众视为失效
func (b *Broadcaster) Narrate(text string) {
	b.mu.Lock()
	targets := make([]*Spectator, 0, len(b.list))
	for _, s := range b.list {
		if !s.dead.Load() {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	line := protocol.Format(protocol.TypeMessage, "[SPECTATOR] "+text, !b.legacy)
	for _, s := range targets {
		if !s.Peer.TrySend(line) {
			s.dead.Store(true)
		}
	}
}

// Prune 移除失效观众，返回移除数量
func (b *Broadcaster) Prune() int {
	b.mu.Lock()
	kept := b.list[:0]
	var removed []*Spectator
	for _, s := range b.list {
		// 观众的输入一律忽略
		s.Peer.Drain()
		if s.Dead() {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	clear(b.list[len(kept):])
	b.list = kept
	b.mu.Unlock()

	for _, s := range removed {
		s.Peer.Close()
	}
	if len(removed) > 0 {
		log.Printf("🧹 移除 %d 个失效观众", len(removed))
	}
	return len(removed)
}

// Len 观众数量
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.list)
}

// CloseAll 关闭全部观众连接
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	list := b.list
	b.list = nil
	b.mu.Unlock()

	for _, s := range list {
		s.Peer.Close()
	}
}
