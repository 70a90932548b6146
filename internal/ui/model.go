package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	chatmodel "github.com/zhouzirui/med-chat/backend/internal/model/chat"
	"github.com/zhouzirui/med-chat/backend/internal/service/chat"
)

const (
	glamourStyle = "dark"
	eventBuffer  = 64
	chromeHeight = 6
)

// Model is the terminal chat widget. It renders one session and forwards
// input to it; all state it shows comes from session events.
type Model struct {
	session     *chat.Session
	events      chan chat.Event
	unsubscribe func()

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
	renderer *glamour.TermRenderer

	width  int
	height int

	messages     []chatmodel.Message
	busy         bool
	lastResponse string
	quick        []string

	notice    *chat.Notice
	noticeSeq int
	status    string
}

type sessionEventMsg struct{ ev chat.Event }
type submitDoneMsg struct {
	outcome chat.Outcome
	err     error
}
type resetDoneMsg struct{ err error }
type noticeExpiredMsg struct{ seq int }

// New builds a widget bound to sess. Call Close once the program exits.
func New(sess *chat.Session) Model {
	events := make(chan chat.Event, eventBuffer)
	unsubscribe := sess.Subscribe(func(ev chat.Event) {
		select {
		case events <- ev:
		default:
			log.Warn().Str("event", string(ev.Type)).Msg("[ui] event dropped, widget is lagging")
		}
	})

	ti := textinput.New()
	ti.Placeholder = "اكتب سؤالك الطبي هنا..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	h := help.New()
	h.ShowAll = false

	snap := sess.Snapshot()
	m := Model{
		session:      sess,
		events:       events,
		unsubscribe:  unsubscribe,
		viewport:     viewport.New(80, 20),
		input:        ti,
		spinner:      sp,
		help:         h,
		keys:         defaultKeys(),
		messages:     snap.Messages,
		busy:         snap.Busy,
		lastResponse: snap.LastResponse,
		quick:        sess.QuickQuestions(),
	}
	m.refreshTranscript()
	return m
}

// Close detaches the widget from its session.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return sessionEventMsg{ev: ev}
	}
}

func (m Model) submitCmd(text string) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		outcome, err := sess.Submit(context.Background(), text)
		return submitDoneMsg{outcome: outcome, err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		return resetDoneMsg{err: sess.Reset(context.Background())}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshTranscript()

	case sessionEventMsg:
		cmds = append(cmds, m.applyEvent(msg.ev), m.waitForEvent())

	case submitDoneMsg:
		if msg.err != nil {
			m.status = "لم يتم حفظ المحادثة: " + msg.err.Error()
		}

	case resetDoneMsg:
		if msg.err != nil {
			m.status = "لم يتم مسح المحادثة المحفوظة: " + msg.err.Error()
		} else {
			m.status = ""
		}

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
		}

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit, true
	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return nil, true
		}
		m.input.Reset()
		m.status = ""
		return m.submitCmd(text), true
	case key.Matches(msg, m.keys.Reset):
		return m.resetCmd(), true
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil, true
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil, true
	}

	for i, binding := range m.keys.Quick {
		if key.Matches(msg, binding) {
			if i < len(m.quick) {
				m.input.SetValue(m.quick[i])
				m.input.CursorEnd()
			}
			return nil, true
		}
	}
	return nil, false
}

func (m *Model) applyEvent(ev chat.Event) tea.Cmd {
	wasBusy := m.busy
	m.messages = ev.Snapshot.Messages
	m.busy = ev.Snapshot.Busy
	m.lastResponse = ev.Snapshot.LastResponse

	var cmd tea.Cmd
	switch ev.Type {
	case chat.EventTranscript:
		m.refreshTranscript()
	case chat.EventBusy:
		if m.busy && !wasBusy {
			cmd = m.spinner.Tick
		}
	case chat.EventNotice:
		if ev.Notice != nil {
			m.noticeSeq++
			m.notice = ev.Notice
			seq := m.noticeSeq
			cmd = tea.Tick(ev.Notice.Duration, func(time.Time) tea.Msg {
				return noticeExpiredMsg{seq: seq}
			})
		}
	}
	return cmd
}

func (m *Model) resize() {
	width := max(m.width-2, 20)
	height := max(m.height-chromeHeight-len(m.quickLines()), 3)
	m.viewport.Width = width
	m.viewport.Height = height
	m.input.Width = max(width-4, 10)

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(glamourStyle),
		glamour.WithWordWrap(max(width-6, 20)),
	)
	if err != nil {
		log.Warn().Err(err).Msg("[ui] markdown renderer unavailable")
		m.renderer = nil
		return
	}
	m.renderer = r
}

// refreshTranscript re-renders the message list and scrolls to the end.
func (m *Model) refreshTranscript() {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m Model) renderMessage(msg chatmodel.Message) string {
	bubbleWidth := max(m.viewport.Width*4/5, 20)
	if msg.Role == chatmodel.RoleUser {
		label := userLabelStyle.Render("أنت")
		body := userBubbleStyle.Width(bubbleWidth).Render(msg.Content)
		return lipgloss.PlaceHorizontal(m.viewport.Width, lipgloss.Right, lipgloss.JoinVertical(lipgloss.Right, label, body))
	}

	content := msg.Content
	if m.renderer != nil {
		if out, err := m.renderer.Render(msg.Content); err == nil {
			content = strings.Trim(out, "\n")
		}
	}
	label := assistantLabelStyle.Render("المساعد")
	return lipgloss.JoinVertical(lipgloss.Left, label, assistantBubbleStyle.Width(bubbleWidth).Render(content))
}

func (m Model) quickLines() []string {
	lines := make([]string, 0, len(m.quick))
	for i, q := range m.quick {
		if i >= len(m.keys.Quick) {
			break
		}
		lines = append(lines, fmt.Sprintf("F%d %s", i+1, q))
	}
	return lines
}

func (m Model) statusLine() string {
	title := m.session.Profile().Title
	if title == "" {
		title = m.session.Profile().ID
	}
	state := "جاهز"
	if m.busy {
		state = m.spinner.View() + " جارٍ الإرسال..."
	}
	line := title + " | " + state
	if m.status != "" {
		line += " | " + m.status
	}
	return statusStyle.Width(max(m.width, 20)).Render(line)
}

func (m Model) noticeView() string {
	if m.notice == nil {
		return ""
	}
	return noticeStyle.Render(m.notice.Title + " " + m.notice.Description)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	parts := []string{m.statusLine()}
	if quick := m.quickLines(); len(quick) > 0 {
		parts = append(parts, quickStyle.Render(strings.Join(quick, "  ")))
	}
	parts = append(parts, panelStyle.Width(m.viewport.Width).Render(m.viewport.View()))
	if notice := m.noticeView(); notice != "" {
		parts = append(parts, notice)
	}
	if m.lastResponse != "" {
		parts = append(parts, lastResponseStyle.Render("آخر استجابة API:\n"+m.lastResponse))
	}
	parts = append(parts, m.input.View(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
