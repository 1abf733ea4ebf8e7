package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key
	playerStatsKey = "battleship:stats:"
	leaderboardKey = "battleship:leaderboard"
	historyKey     = "battleship:history"

	// 保留最近的对局数
	historyLimit = 100
)

// PlayerStats 玩家战绩
type PlayerStats struct {
	Token  string `json:"token"`
	Games  int    `json:"games"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

// WinRate 胜率
func (s *PlayerStats) WinRate() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Games)
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Token string `json:"token"`
	Wins  int    `json:"wins"`
}

// StatsStore 基于 Redis 的战绩存储
type StatsStore struct {
	client *redis.Client
}

// NewStatsStore 创建战绩存储
func NewStatsStore(client *redis.Client) *StatsStore {
	return &StatsStore{client: client}
}

// RecordMatch 记录一局结果：双方战绩、排行榜、最近对局
func (s *StatsStore) RecordMatch(ctx context.Context, rec MatchRecord) error {
	pipe := s.client.TxPipeline()

	if rec.Winner != "" {
		key := playerStatsKey + rec.Winner
		pipe.HIncrBy(ctx, key, "games", 1)
		pipe.HIncrBy(ctx, key, "wins", 1)
		pipe.ZIncrBy(ctx, leaderboardKey, 1, rec.Winner)
	}
	if rec.Loser != "" {
		key := playerStatsKey + rec.Loser
		pipe.HIncrBy(ctx, key, "games", 1)
		pipe.HIncrBy(ctx, key, "losses", 1)
	}

	pipe.LPush(ctx, historyKey, rec.Marshal())
	pipe.LTrim(ctx, historyKey, 0, historyLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record match %s: %w", rec.MatchID, err)
	}
	return nil
}

// GetPlayerStats 获取玩家战绩，无记录时返回零值
func (s *StatsStore) GetPlayerStats(ctx context.Context, token string) (*PlayerStats, error) {
	data, err := s.client.HGetAll(ctx, playerStatsKey+token).Result()
	if err != nil {
		return nil, err
	}

	stats := &PlayerStats{Token: token}
	stats.Games, _ = strconv.Atoi(data["games"])
	stats.Wins, _ = strconv.Atoi(data["wins"])
	stats.Losses, _ = strconv.Atoi(data["losses"])
	return stats, nil
}

// TopPlayers 按胜场排名
func (s *StatsStore) TopPlayers(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for i, z := range results {
		token, _ := z.Member.(string)
		entries = append(entries, LeaderboardEntry{
			Rank:  i + 1,
			Token: token,
			Wins:  int(z.Score),
		})
	}
	return entries, nil
}

// RecentMatches 最近 limit 局，最新的在前
func (s *StatsStore) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	raw, err := s.client.LRange(ctx, historyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]MatchRecord, 0, len(raw))
	for _, item := range raw {
		rec, err := UnmarshalMatchRecord([]byte(item))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
