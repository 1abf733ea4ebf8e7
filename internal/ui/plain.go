package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/palemoky/battleship/internal/network/client"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/sound"
)

// RunPlain 行模式：打印服务端消息，逐行转发输入；用于非终端环境
func RunPlain(ctx context.Context, c Sender, player Player, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := c.Send(line); err != nil {
				fmt.Fprintf(out, "send failed: %v\n", err)
			}
		}
		// 输入结束视为离开
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case ev := <-c.Events():
			if done, err := printEvent(out, player, ev); done {
				return err
			}
		}
	}
}

// printEvent 输出一条事件；连接结束时返回 done=true
func printEvent(out io.Writer, player Player, ev client.Event) (bool, error) {
	switch ev.Kind {
	case client.EventGrid:
		title := "Opponent's board:"
		if ev.Grid.Self {
			title = "Your board:"
		}
		fmt.Fprintln(out, PlainGrid(title, ev.Grid.Rows))
	case client.EventPacket:
		if name := sound.ForPacket(ev.Packet); name != "" && player != nil {
			player.Play(name)
		}
		switch ev.Packet.Type {
		case protocol.TypeCommand:
			if ev.Packet.Payload == protocol.CommandYourTurn {
				fmt.Fprintln(out, ">>> Your turn")
				return false, nil
			}
			if ev.Packet.Payload == protocol.CommandSendID {
				return false, nil
			}
		case protocol.TypeResult:
			fmt.Fprintln(out, ev.Packet.Type.String()+" "+ev.Packet.Payload)
			return false, nil
		}
		fmt.Fprintln(out, ev.Packet.Payload)
	case client.EventReconnecting:
		fmt.Fprintf(out, "Connection lost. Reconnecting (%d/%d)...\n", ev.Attempt, ev.MaxAttempts)
	case client.EventReconnected:
		fmt.Fprintln(out, "Reconnected.")
	case client.EventClosed:
		fmt.Fprintln(out, "Disconnected.")
		return true, ev.Err
	}
	return false, nil
}
