//go:build !production

package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/battleship/internal/network/server/storage"
)

// MockStatsStore 战绩存储 mock
type MockStatsStore struct {
	mock.Mock
}

func (m *MockStatsStore) RecordMatch(ctx context.Context, rec storage.MatchRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStatsStore) GetPlayerStats(ctx context.Context, token string) (*storage.PlayerStats, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PlayerStats), args.Error(1)
}

func (m *MockStatsStore) TopPlayers(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.LeaderboardEntry), args.Error(1)
}

// RecordingNarrator 记录全部播报内容，不使用 testify（用于不需要断言调用的测试）
type RecordingNarrator struct {
	mu    sync.Mutex
	lines []string
}

func (n *RecordingNarrator) Narrate(text string) {
	n.mu.Lock()
	n.lines = append(n.lines, text)
	n.mu.Unlock()
}

// Lines 已播报的内容
func (n *RecordingNarrator) Lines() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.lines...)
}
