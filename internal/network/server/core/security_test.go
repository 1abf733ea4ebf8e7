package core

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerSecondBan(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(5, 10, time.Second)
	ip := "127.0.0.1"

	for i := range 5 {
		assert.True(t, rl.Allow(ip), "connection %d should be allowed", i)
	}
	assert.False(t, rl.Allow(ip), "6th connection should be blocked")
	assert.True(t, rl.IsBanned(ip))
	assert.False(t, rl.IsBanned("10.0.0.1"))
}

func TestRateLimiter_WindowsAndBanExpiry(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, 3, 30*time.Second)
	ip := "10.0.0.2"
	now := time.Now()

	assert.True(t, rl.allowAt(ip, now))
	assert.True(t, rl.allowAt(ip, now))
	// 新的一秒，秒级计数归零，但分钟计数累计到 3
	assert.True(t, rl.allowAt(ip, now.Add(1100*time.Millisecond)))
	assert.False(t, rl.allowAt(ip, now.Add(1200*time.Millisecond)), "per-minute limit")

	assert.False(t, rl.allowAt(ip, now.Add(20*time.Second)), "still banned")
	assert.True(t, rl.allowAt(ip, now.Add(2*time.Minute)), "ban expired and windows reset")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(5, 10, time.Second)
	now := time.Now()
	rl.allowAt("a", now)
	rl.allowAt("b", now.Add(9*time.Minute))

	assert.Equal(t, 1, rl.cleanup(now.Add(11*time.Minute)))
	assert.Len(t, rl.requests, 1)
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"listed", []string{"https://game.example"}, "https://GAME.example", true},
		{"not listed", []string{"https://game.example"}, "https://other.example", false},
		{"no origin header", []string{"https://game.example"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, NewOriginChecker(tt.allowed).Check(r))
		})
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "192.168.1.9:5123"
	assert.Equal(t, "192.168.1.9", GetClientIP(r))

	r.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", GetClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", GetClientIP(r))

	assert.Equal(t, "not-an-addr", HostIP("not-an-addr"))
}
