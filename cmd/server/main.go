package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/palemoky/battleship/internal/config"
	"github.com/palemoky/battleship/internal/network/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "配置文件路径")
	envFile := pflag.String("env-file", ".env", "环境变量文件（可选）")
	port := pflag.IntP("port", "p", 0, "TCP 监听端口（覆盖配置）")
	maxMatches := pflag.IntP("max-matches", "m", 0, "同时进行的对局数（覆盖配置）")
	legacy := pflag.Bool("legacy", false, "输出无帧旧版文本")
	shutdownTimeout := pflag.Duration("shutdown-timeout", 5*time.Minute, "优雅关闭时等待对局结束的最长时间")
	pflag.Parse()

	// 加载配置：文件 → .env/环境变量 → 命令行
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}
	if err := cfg.LoadEnv(*envFile); err != nil {
		log.Fatalf("读取环境变量失败: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *maxMatches > 0 {
		cfg.Match.MaxConcurrent = *maxMatches
	}
	if pflag.CommandLine.Changed("legacy") {
		cfg.Server.Legacy = *legacy
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("创建服务器失败: %v", err)
	}

	// 第一次信号进入维护模式并等待对局结束，第二次立即退出
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("正在关闭服务器...")
		go srv.GracefulShutdown(*shutdownTimeout, 5*time.Second)
		<-quit
		log.Println("强制关闭")
		srv.Shutdown()
	}()

	log.Println("🎮 海战服务器启动中...")
	if err := srv.ListenAndServe(context.Background()); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}
