// Package ui 终端界面：bubbletea 全屏模式与纯文本行模式
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/palemoky/battleship/internal/network/client"
	"github.com/palemoky/battleship/internal/protocol"
	"github.com/palemoky/battleship/internal/sound"
)

const (
	maxLogLines  = 500
	gridHeight   = 14
	chromeHeight = 8
)

// Sender 界面发送指令所需的客户端能力
type Sender interface {
	Send(line string) error
	Quit() error
	Close()
	Events() <-chan client.Event
}

// Player 音效播放
type Player interface {
	Play(name string)
}

type eventMsg client.Event

// Model bubbletea 主模型
type Model struct {
	client Sender
	sound  Player
	token  string

	input    textinput.Model
	log      viewport.Model
	lines    []string
	self     []string
	opponent []string

	yourTurn     bool
	status       string
	disconnected bool
	ready        bool
}

// NewModel 创建主模型
func NewModel(c Sender, player Player, token string) Model {
	ti := textinput.New()
	ti.Placeholder = "FIRE B5"
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 40

	return Model{
		client: c,
		sound:  player,
		token:  token,
		input:  ti,
		log:    viewport.New(80, 10),
		status: "Connecting...",
	}
}

// waitForEvent 等待下一条客户端事件
func waitForEvent(c Sender) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-c.Events())
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.client))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.log.Width = msg.Width - 4
		m.log.Height = max(msg.Height-gridHeight-chromeHeight, 3)
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m = m.handleEvent(client.Event(msg))
		if m.disconnected {
			return m, nil
		}
		return m, waitForEvent(m.client)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		if !m.disconnected {
			_ = m.client.Quit()
		}
		m.client.Close()
		return m, tea.Quit

	case tea.KeyEnter:
		if m.disconnected {
			return m, tea.Quit
		}
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		m.appendLog("> " + line)
		if err := m.client.Send(line); err != nil {
			m.appendLog(errorStyle.Render("send failed: " + err.Error()))
		}
		if line == protocol.CmdFire || strings.HasPrefix(strings.ToUpper(line), protocol.CmdFire+" ") {
			m.yourTurn = false
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleEvent 把客户端事件落到界面状态上
func (m Model) handleEvent(ev client.Event) Model {
	switch ev.Kind {
	case client.EventGrid:
		if ev.Grid.Self {
			m.self = ev.Grid.Rows
		} else {
			m.opponent = ev.Grid.Rows
		}

	case client.EventPacket:
		m = m.handlePacket(ev.Packet)

	case client.EventReconnecting:
		m.status = fmt.Sprintf("Connection lost. Reconnecting (%d/%d)...", ev.Attempt, ev.MaxAttempts)

	case client.EventReconnected:
		m.status = "Reconnected."

	case client.EventClosed:
		m.disconnected = true
		m.yourTurn = false
		m.status = "Disconnected. Press Enter to exit."
		if ev.Err != nil {
			m.appendLog(errorStyle.Render("connection error: " + ev.Err.Error()))
		}
	}
	return m
}

func (m Model) handlePacket(pkt protocol.Packet) Model {
	if name := sound.ForPacket(pkt); name != "" && m.sound != nil {
		m.sound.Play(name)
	}

	switch pkt.Type {
	case protocol.TypeCommand:
		switch pkt.Payload {
		case protocol.CommandYourTurn:
			m.yourTurn = true
			m.status = "Your turn! Enter FIRE <coordinate>."
		case protocol.CommandSendID:
			m.status = "A seat is available. Sending ID..."
		default:
			m.appendLog(pkt.Payload)
		}
	case protocol.TypeResult:
		m.appendLog(resultStyle.Render(pkt.Type.String() + " " + pkt.Payload))
		switch pkt.Payload {
		case protocol.ResultWin:
			m.status = "You win!"
		case protocol.ResultLose, protocol.ResultForfeit:
			m.status = "You lose."
		}
	default:
		m.appendLog(pkt.Payload)
		if strings.HasPrefix(pkt.Payload, "Welcome") || strings.Contains(pkt.Payload, "queue") {
			m.status = pkt.Payload
		}
	}
	return m
}

func (m *Model) appendLog(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.log.SetContent(strings.Join(m.lines, "\n"))
	m.log.GotoBottom()
}

func (m Model) View() string {
	grids := lipgloss.JoinHorizontal(lipgloss.Top,
		RenderGrid("Your fleet", m.self, false),
		"  ",
		RenderGrid("Enemy waters", m.opponent, m.yourTurn),
	)

	title := titleStyle(fmt.Sprintf("⚓ Battleship  ·  %s", m.token))
	status := statusStyle.Render(m.status)
	if m.disconnected {
		status = errorStyle.Render(m.status)
	}

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		grids,
		boxStyle.Render(m.log.View()),
		status,
		promptStyle.Render(m.input.View()),
	))
}
