// Package server 接入层：TCP 监听、WebSocket 网关、健康检查与优雅停机
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/palemoky/battleship/internal/apperrors"
	"github.com/palemoky/battleship/internal/config"
	"github.com/palemoky/battleship/internal/network/server/core"
	"github.com/palemoky/battleship/internal/network/server/game"
	"github.com/palemoky/battleship/internal/network/server/session"
	"github.com/palemoky/battleship/internal/network/server/storage"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/transport"
)

const (
	monitorInterval      = 30 * time.Second
	sessionSweepInterval = time.Minute
	rateCleanupInterval  = 5 * time.Minute
	leaderboardSize      = 10
)

// Server 海战服务器
type Server struct {
	config   *config.Config
	redis    *redis.Client
	stats    *storage.StatsStore
	sessions *session.Manager
	matcher  *game.Matcher

	// 安全组件
	rateLimiter   *core.RateLimiter
	originChecker *core.OriginChecker
	upgrader      websocket.Upgrader

	// 连接控制
	maxConnections int
	semaphore      chan struct{}

	maintenance atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	httpSrv  *http.Server
	listener net.Listener
}

// NewServer 创建服务器；启用 Redis 时先检查连通性
func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{
		config:   cfg,
		sessions: session.NewManager(cfg.Match.SessionTTLDuration()),
		rateLimiter: core.NewRateLimiter(
			cfg.Security.RateLimit.MaxPerSecond,
			cfg.Security.RateLimit.MaxPerMinute,
			cfg.Security.RateLimit.BanDurationTime(),
		),
		originChecker:  core.NewOriginChecker(cfg.Security.AllowedOrigins),
		maxConnections: cfg.Server.MaxConnections,
		semaphore:      make(chan struct{}, cfg.Server.MaxConnections),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}

	// 接口变量保持 nil，避免带类型的 nil
	var recorder game.StatsRecorder
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis 连接失败: %w", err)
		}

		s.redis = rdb
		s.stats = storage.NewStatsStore(rdb)
		recorder = s.stats
	}

	s.matcher = game.NewMatcher(game.OptionsFromConfig(cfg), cfg.Match, s.sessions, recorder)

	log.Printf("🔒 安全配置: 连接限制=%d/s, %d/min, 最大连接数=%d, 同时对局=%d",
		cfg.Security.RateLimit.MaxPerSecond, cfg.Security.RateLimit.MaxPerMinute,
		cfg.Server.MaxConnections, cfg.Match.MaxConcurrent)
	return s, nil
}

// Matcher 匹配器
func (s *Server) Matcher() *game.Matcher {
	return s.matcher
}

// ListenAndServe 监听配置的 TCP 地址并阻塞运行，直到 ctx 取消或调用 Shutdown
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在 ln 上接受 TCP 连接；同时启动调度、清理、监控以及可选的 WebSocket 网关
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.listener = ln
	s.mu.Unlock()

	go s.matcher.Run(ctx)
	go s.sessions.Run(ctx, sessionSweepInterval)
	go s.rateLimiter.Run(ctx, rateCleanupInterval)
	go s.monitorStats(ctx)

	if s.config.Server.WSPort > 0 {
		go s.serveHTTP(ctx)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log.Printf("🚀 服务器启动在 tcp://%s (CPU核心数: %d)", ln.Addr(), runtime.NumCPU())
	err := s.acceptLoop(ctx, ln)
	cancel()

	s.closeHTTP()
	s.matcher.Shutdown(5 * time.Second)
	if s.redis != nil {
		_ = s.redis.Close()
	}
	log.Println("服务器已关闭")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("⚠️ Accept 失败: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		go s.handleTCP(ctx, conn)
	}
}

// handleTCP 新的 TCP 连接：检查速率与连接数后交给匹配器；维护模式在身份识别后由匹配器判断
func (s *Server) handleTCP(ctx context.Context, raw net.Conn) {
	ip := core.HostIP(raw.RemoteAddr().String())
	conn := transport.NewTCPConn(raw)

	if err := s.admissionError(ip); err != nil {
		log.Printf("🚫 拒绝连接 %s: %v", ip, err)
		_ = conn.WriteLine(protocol.Format(protocol.TypeMessage, err.Error(), !s.config.Server.Legacy))
		_ = conn.Close()
		return
	}
	if !s.acquire() {
		log.Printf("🚫 达到最大连接数限制 (%d), IP: %s", s.maxConnections, ip)
		_ = conn.WriteLine(protocol.Format(protocol.TypeMessage, apperrors.ErrTooManyConnections.Error(), !s.config.Server.Legacy))
		_ = conn.Close()
		return
	}

	s.attach(ctx, transport.NewPeer(conn))
}

// admissionError 速率限制检查
func (s *Server) admissionError(ip string) error {
	if !s.rateLimiter.Allow(ip) {
		return fmt.Errorf("rate limited: %s", ip)
	}
	return nil
}

func (s *Server) acquire() bool {
	select {
	case s.semaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

// attach 连接关闭时归还信号量
func (s *Server) attach(ctx context.Context, peer *transport.Peer) {
	go func() {
		<-peer.Done()
		<-s.semaphore
	}()
	s.matcher.Handle(ctx, peer)
}

// --- WebSocket 网关 ---

// HTTPHandler WebSocket 网关与查询接口
func (s *Server) HTTPHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWebSocket(ctx, w, r)
	})
	mux.HandleFunc("/health", s.handleHealth)
	if s.stats != nil {
		mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
		mux.HandleFunc("GET /stats/{token}", s.handlePlayerStats)
	}
	return mux
}

func (s *Server) serveHTTP(ctx context.Context) {
	srv := &http.Server{
		Addr:              s.config.Server.WSAddr(),
		Handler:           s.HTTPHandler(ctx),
		ReadHeaderTimeout: 10 * time.Second, // 防止 Slowloris 攻击
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	log.Printf("🌐 WebSocket 网关启动在 ws://%s/ws", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("❌ WebSocket 网关异常退出: %v", err)
	}
}

func (s *Server) closeHTTP() {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	clientIP := core.GetClientIP(r)

	if err := s.admissionError(clientIP); err != nil {
		log.Printf("🚫 拒绝 WebSocket 连接 %s: %v", clientIP, err)
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	if !s.acquire() {
		log.Printf("🚫 达到最大连接数限制 (%d), IP: %s", s.maxConnections, clientIP)
		http.Error(w, "Server Full", http.StatusServiceUnavailable)
		return
	}

	// 来源校验由 upgrader.CheckOrigin 完成，失败时返回 403
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		<-s.semaphore
		log.Printf("WebSocket 升级失败: %v", err)
		return
	}

	s.attach(ctx, transport.NewPeer(transport.NewWSConn(ws)))
}

// HealthStatus /health 的响应
type HealthStatus struct {
	Status      string `json:"status"`
	Maintenance bool   `json:"maintenance"`
	Queue       int    `json:"queue"`
	Matches     int    `json:"matches"`
	Spectators  int    `json:"spectators"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`

	Games []GameStatus `json:"games"`
}

// GameStatus 进行中的一局
type GameStatus struct {
	ID      string    `json:"id"`
	Players [2]string `json:"players"`
	Phase   string    `json:"phase"`
}

// Health 服务器状态快照
func (s *Server) Health() HealthStatus {
	status := "ok"
	if s.IsMaintenanceMode() {
		status = "maintenance"
	}
	matches := s.matcher.ActiveMatches()
	games := make([]GameStatus, 0, len(matches))
	for _, match := range matches {
		seats := match.Seats()
		games = append(games, GameStatus{
			ID:      match.ID,
			Players: [2]string{seats[0].Token, seats[1].Token},
			Phase:   match.Phase().String(),
		})
	}

	return HealthStatus{
		Games:       games,
		Status:      status,
		Maintenance: s.IsMaintenanceMode(),
		Queue:       s.matcher.QueueLen(),
		Matches:     len(matches),
		Spectators:  s.matcher.SpectatorCount(),
		Sessions:    s.sessions.Len(),
		Connections: len(s.semaphore),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Health())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.stats.TopPlayers(r.Context(), leaderboardSize)
	if err != nil {
		log.Printf("❌ 读取排行榜失败: %v", err)
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.GetPlayerStats(r.Context(), r.PathValue("token"))
	if err != nil {
		log.Printf("❌ 读取战绩失败: %v", err)
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("写入响应失败: %v", err)
	}
}

// monitorStats 定期监控服务器状态
func (s *Server) monitorStats(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		h := s.Health()

		log.Printf("📊 [监控] 排队: %d | 对局: %d | 观众: %d | 会话: %d | Goroutines: %d | 活跃连接: %d/%d | 内存: %.2f MB",
			h.Queue, h.Matches, h.Spectators, h.Sessions,
			runtime.NumGoroutine(),
			h.Connections, s.maxConnections,
			float64(m.Alloc)/1024/1024)
	}
}

// --- 维护与停机 ---

// EnterMaintenanceMode 进入维护模式：拒绝新玩家与观众，进行中的对局和断线重连不受影响
func (s *Server) EnterMaintenanceMode() {
	if s.maintenance.Swap(true) {
		return
	}
	s.matcher.StopAdmissions()
	s.matcher.Announce("Server maintenance: no new connections are accepted. Running matches will finish normally.")
	log.Println("🔧 进入维护模式：停止接受新连接")
}

// IsMaintenanceMode 是否处于维护模式
func (s *Server) IsMaintenanceMode() bool {
	return s.maintenance.Load()
}

// GracefulShutdown 进入维护模式并等待对局结束，超时后强制关闭
func (s *Server) GracefulShutdown(timeout, checkInterval time.Duration) {
	s.EnterMaintenanceMode()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		active := s.matcher.ActiveCount()
		if active == 0 {
			log.Println("✅ 所有对局已结束")
			break
		}
		log.Printf("⏳ 等待 %d 个对局结束...", active)
		<-ticker.C
	}

	if active := s.matcher.ActiveCount(); active > 0 {
		log.Printf("⚠️ 超时，仍有 %d 个对局进行中，强制关闭", active)
	}
	s.matcher.Announce("Server is shutting down. Goodbye!")
	s.Shutdown()
}

// Shutdown 停止接受连接并结束全部后台协程；Serve 随后返回
func (s *Server) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
