package main

import (
	"context"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/palemoky/battleship/internal/logger"
	"github.com/palemoky/battleship/internal/network/client"
	"github.com/palemoky/battleship/internal/sound"
	"github.com/palemoky/battleship/internal/ui"
)

func main() {
	serverAddr := pflag.StringP("server", "s", "localhost:5000", "服务器地址（host:port 或 ws://host:port/ws）")
	token := pflag.StringP("id", "i", "", "身份令牌，断线重连时必须相同（默认随机生成）")
	plain := pflag.Bool("plain", false, "强制使用纯文本行模式")
	mute := pflag.Bool("mute", false, "关闭音效")
	soundDir := pflag.String("sounds", "assets/sounds", "音效文件目录")
	pflag.Parse()

	if *token == "" {
		*token = client.GenerateToken()
	}
	if !client.ValidToken(*token) {
		fmt.Fprintln(os.Stderr, "invalid --id: must be non-empty and contain no spaces")
		os.Exit(2)
	}

	// 非终端环境（管道、重定向）自动使用行模式
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	usePlain := *plain || !interactive

	// 全屏模式下日志写入文件，避免干扰界面
	if !usePlain {
		if err := logger.Init(); err != nil {
			log.SetOutput(os.Stderr)
			log.Printf("初始化日志失败: %v", err)
		}
		defer logger.Close()
	}

	var player ui.Player
	if !*mute {
		sm := sound.NewSoundManager(*soundDir)
		if err := sm.Init(); err != nil {
			logger.LogError("音效初始化失败: %v", err)
		} else {
			defer sm.Close()
			player = sm
		}
	}

	c := client.NewClient(*serverAddr, *token)
	logger.LogInfo("connecting to %s as %s", *serverAddr, *token)
	if err := c.Connect(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "无法连接服务器 %s: %v\n", *serverAddr, err)
		os.Exit(1)
	}
	defer c.Close()

	if usePlain {
		fmt.Printf("Connected to %s as %s\n", *serverAddr, *token)
		if err := ui.RunPlain(context.Background(), c, player, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "连接异常结束: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(ui.NewModel(c, player, *token), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("启动客户端时出错: %v", err)
	}
}
