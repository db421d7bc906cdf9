package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scriba/hotkey"
)

// TUI message types
type ListeningMsg struct{ On bool }
type AudioLevelMsg struct{ Level float64 }
type NoVoiceMsg struct{ On bool }
type LiveTextMsg struct{ Text string } // intended text of the open utterance
type LogMsg struct{ Text string }
type UtteranceMsg struct {
	Text       string
	Outcome    string
	Reason     string
	Confidence float64
	Scored     bool
}
type OpsMsg struct{ Appends, Deletes, Commits int }
type SessionStatsMsg struct{ Lines []string }
type DecoderLineMsg struct{ Text string }
type DeviceLineMsg struct{ Text string }
type tickMsg time.Time

const meterWidth = 30

type tuiModel struct {
	width, height int
	debug         bool

	listening   bool
	level       float64
	noVoice     bool
	decoderLine string
	deviceLine  string

	live      string
	last      UtteranceMsg
	count     int
	ops       OpsMsg
	stats     []string
	lastError string
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
	tuiReady   = make(chan struct{})
	readyOnce  sync.Once
)

var (
	styleListening = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	stylePaused    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleWarn      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleDim       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleFaint     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleCommitted = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleAbandoned = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Strikethrough(true)
	styleLive      = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	styleMeterOn   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleMeterOff  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

func NewTUIProgram(debug bool) *tea.Program {
	return tea.NewProgram(tuiModel{debug: debug, listening: true}, tea.WithAltScreen())
}

// tuiSend is a no-op when the TUI is off.
func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func logToTUI(format string, args ...any) {
	tuiSend(LogMsg{Text: fmt.Sprintf(format, args...)})
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	readyOnce.Do(func() { close(tuiReady) })
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

	case tickMsg:
		// decay so the meter falls back when callbacks stop
		m.level *= 0.7
		return m, tuiTick()

	case ListeningMsg:
		m.listening = msg.On
		if !msg.On {
			m.level = 0
			m.noVoice = false
			m.live = ""
		}

	case AudioLevelMsg:
		m.level = max(m.level*0.6+msg.Level*0.4, msg.Level)

	case NoVoiceMsg:
		m.noVoice = msg.On

	case LiveTextMsg:
		m.live = msg.Text

	case UtteranceMsg:
		m.count++
		m.last = msg
		m.live = ""

	case OpsMsg:
		m.ops = msg

	case SessionStatsMsg:
		m.stats = msg.Lines

	case DecoderLineMsg:
		m.decoderLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case LogMsg:
		m.lastError = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	wrap := max(m.width-4, 10)

	var lines []string
	if m.listening {
		lines = append(lines, styleListening.Render("● LISTENING"))
	} else {
		lines = append(lines, stylePaused.Render("○ PAUSED"))
	}
	if m.decoderLine != "" {
		lines = append(lines, styleDim.Render(m.decoderLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, styleDim.Render(m.deviceLine))
	}
	if m.listening {
		lines = append(lines, renderMeter(m.level, meterWidth))
		if m.noVoice {
			lines = append(lines, styleWarn.Render("  ⚠ no voice detected"))
		}
	}

	if m.debug && m.live != "" {
		lines = append(lines, "", styleDim.Render("live"))
		for _, l := range wrapText(m.live, wrap) {
			lines = append(lines, styleLive.Render(l))
		}
	}

	lines = append(lines, "")
	if m.count == 0 {
		lines = append(lines, styleDim.Render("No utterances yet"))
	} else {
		lines = append(lines, styleDim.Render(utteranceTitle(m.count, m.last)))
		style := styleCommitted
		if m.last.Outcome != "committed" {
			style = styleAbandoned
		}
		text := m.last.Text
		if text == "" {
			text = "(empty)"
		}
		for _, l := range wrapText(text, wrap) {
			lines = append(lines, style.Render(l))
		}
	}

	lines = append(lines, "", styleDim.Render(fmt.Sprintf("ops: %d append | %d delete | %d commit",
		m.ops.Appends, m.ops.Deletes, m.ops.Commits)))
	for _, s := range m.stats {
		lines = append(lines, styleFaint.Render(s))
	}
	if m.lastError != "" {
		lines = append(lines, "", styleWarn.Render(m.lastError))
	}

	lines = append(lines, "",
		styleFaint.Bold(true).Render(hotkey.Combo)+styleFaint.Render(" to pause/resume, q to quit"),
		styleFaint.Render("scriba "+version))

	return lipgloss.NewStyle().Width(m.width).PaddingLeft(1).Render(strings.Join(lines, "\n"))
}

func utteranceTitle(n int, u UtteranceMsg) string {
	title := fmt.Sprintf("Last utterance (#%d) %s", n, u.Outcome)
	if u.Reason != "" {
		title += ": " + u.Reason
	}
	if u.Scored {
		title += fmt.Sprintf(" @%.2f", u.Confidence)
	}
	return title
}

// renderMeter draws level (RMS, roughly 0..0.3 for speech) as a bar.
func renderMeter(level float64, width int) string {
	n := min(int(level/0.3*float64(width)+0.5), width)
	n = max(n, 0)
	return styleMeterOn.Render(strings.Repeat("▮", n)) + styleMeterOff.Render(strings.Repeat("▯", width-n))
}

func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	r := []rune(text)
	for len(r) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if r[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(r[:splitAt]))
		r = []rune(strings.TrimLeft(string(r[splitAt:]), " "))
	}
	if len(r) > 0 {
		lines = append(lines, string(r))
	}
	return lines
}
