package client

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// 令牌词库
var (
	adjectives = []string{
		"brave", "clever", "happy", "silent", "swift",
		"steady", "bold", "calm", "lucky", "sharp",
		"salty", "stormy", "misty", "rusty", "sunny",
	}

	nouns = []string{
		"admiral", "captain", "sailor", "gunner", "pilot",
		"harbor", "anchor", "torpedo", "frigate", "corsair",
		"dolphin", "kraken", "walrus", "gull", "orca",
	}
)

// GenerateToken 生成随机身份令牌，如 "swift-kraken-1a2b3c"
func GenerateToken() string {
	adj := adjectives[rand.IntN(len(adjectives))]
	noun := nouns[rand.IntN(len(nouns))]
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return adj + "-" + noun + "-" + suffix
}

// ValidToken 令牌不能为空且不能含空白
func ValidToken(token string) bool {
	return token != "" && !strings.ContainsAny(token, " \t\r\n")
}
