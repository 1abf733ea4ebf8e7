package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func newTestStatsStore(t *testing.T) (*StatsStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStatsStore(client), mr
}

func TestMatchRecord_Encoding(t *testing.T) {
	t.Parallel()

	ended := time.UnixMilli(1_760_000_000_123)
	rec := MatchRecord{
		MatchID: "m-1",
		Round:   2,
		Winner:  "alice",
		Loser:   "bob",
		Reason:  ReasonSunk,
		Shots:   41,
		EndedAt: ended,
	}

	got, err := UnmarshalMatchRecord(rec.Marshal())
	require.NoError(t, err)
	assert.Equal(t, rec.MatchID, got.MatchID)
	assert.Equal(t, rec.Round, got.Round)
	assert.Equal(t, rec.Winner, got.Winner)
	assert.Equal(t, rec.Loser, got.Loser)
	assert.Equal(t, rec.Reason, got.Reason)
	assert.Equal(t, rec.Shots, got.Shots)
	assert.True(t, ended.Equal(got.EndedAt))
}

func TestMatchRecord_SkipsUnknownFields(t *testing.T) {
	t.Parallel()

	rec := MatchRecord{MatchID: "m-2", Winner: "carol"}
	b := rec.Marshal()
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future field")

	got, err := UnmarshalMatchRecord(b)
	require.NoError(t, err)
	assert.Equal(t, "m-2", got.MatchID)
	assert.Equal(t, "carol", got.Winner)
	assert.True(t, got.EndedAt.IsZero())
}

func TestMatchRecord_Malformed(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalMatchRecord([]byte{0x0a, 0x05, 'a'})
	assert.Error(t, err)
}

func TestStatsStore_RecordMatch(t *testing.T) {
	t.Parallel()

	store, _ := newTestStatsStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMatch(ctx, MatchRecord{MatchID: "m-1", Winner: "alice", Loser: "bob", Reason: ReasonSunk}))
	require.NoError(t, store.RecordMatch(ctx, MatchRecord{MatchID: "m-2", Winner: "alice", Loser: "carol", Reason: ReasonForfeit}))
	require.NoError(t, store.RecordMatch(ctx, MatchRecord{MatchID: "m-3", Winner: "bob", Loser: "alice", Reason: ReasonDisconnect}))

	alice, err := store.GetPlayerStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, alice.Games)
	assert.Equal(t, 2, alice.Wins)
	assert.Equal(t, 1, alice.Losses)
	assert.InDelta(t, 2.0/3.0, alice.WinRate(), 0.001)

	nobody, err := store.GetPlayerStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, nobody.Games)
	assert.Zero(t, nobody.WinRate())

	top, err := store.TopPlayers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, LeaderboardEntry{Rank: 1, Token: "alice", Wins: 2}, top[0])
	assert.Equal(t, "bob", top[1].Token)

	recent, err := store.RecentMatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m-3", recent[0].MatchID)
	assert.Equal(t, ReasonDisconnect, recent[0].Reason)
	assert.Equal(t, "m-2", recent[1].MatchID)
}

func TestStatsStore_NoWinner(t *testing.T) {
	t.Parallel()

	store, _ := newTestStatsStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMatch(ctx, MatchRecord{MatchID: "m-1", Reason: ReasonDisconnect}))

	top, err := store.TopPlayers(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, top)

	recent, err := store.RecentMatches(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestStatsStore_HistoryTrimmed(t *testing.T) {
	t.Parallel()

	store, mr := newTestStatsStore(t)
	ctx := context.Background()

	for i := range historyLimit + 5 {
		require.NoError(t, store.RecordMatch(ctx, MatchRecord{MatchID: fmt.Sprintf("m-%d", i)}))
	}

	items, err := mr.List(historyKey)
	require.NoError(t, err)
	assert.Len(t, items, historyLimit)
}

func TestStatsStore_RedisDown(t *testing.T) {
	t.Parallel()

	store, mr := newTestStatsStore(t)
	mr.Close()

	err := store.RecordMatch(context.Background(), MatchRecord{MatchID: "m-x", Winner: "a"})
	assert.Error(t, err)
}
