package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zhouzirui/med-chat/backend/internal/analysis/failure"
	"github.com/zhouzirui/med-chat/backend/internal/model/profile"
	"github.com/zhouzirui/med-chat/backend/internal/service/ai"
	"github.com/zhouzirui/med-chat/backend/internal/service/chat"
	"github.com/zhouzirui/med-chat/backend/internal/store"
)

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, ai.Request) (*ai.Response, error) {
	return &ai.Response{Status: 200, Body: []byte(`{}`), Content: "answer"}, nil
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	sess, err := chat.Open(context.Background(), chat.Config{
		ID:        "local",
		Profile:   profile.Seed()[0],
		Store:     store.NewMemoryStore(),
		Completer: stubCompleter{},
	})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	m := New(sess)
	t.Cleanup(m.Close)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

// drain feeds every queued session event back into the model.
func drain(m Model) Model {
	for {
		select {
		case ev := <-m.events:
			updated, _ := m.Update(sessionEventMsg{ev: ev})
			m = updated.(Model)
		default:
			return m
		}
	}
}

func TestQuickQuestionFillsInput(t *testing.T) {
	m := newTestModel(t)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyF2})
	m = updated.(Model)

	if cmd != nil {
		t.Fatal("quick question must not submit")
	}
	if got := m.input.Value(); got != profile.Seed()[0].QuickQuestions[1] {
		t.Fatalf("unexpected input: %q", got)
	}
}

func TestEnterSubmitsAndClearsInput(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("what is aspirin?")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	if m.input.Value() != "" {
		t.Fatalf("expected input cleared, got %q", m.input.Value())
	}
	if cmd == nil {
		t.Fatal("expected a submit command")
	}

	done, ok := cmd().(submitDoneMsg)
	if !ok {
		t.Fatal("expected submitDoneMsg")
	}
	if done.err != nil || !done.outcome.OK() {
		t.Fatalf("unexpected outcome: %+v err=%v", done.outcome, done.err)
	}

	m = drain(m)
	if len(m.messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(m.messages))
	}
	if m.messages[2].Content != "answer" {
		t.Fatalf("unexpected reply: %q", m.messages[2].Content)
	}
	if m.busy {
		t.Fatal("expected idle after settlement")
	}
	if !strings.Contains(m.View(), "what is aspirin?") {
		t.Fatal("expected the user message in the view")
	}
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("   ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("blank input must not submit")
	}
}

func TestResetKey(t *testing.T) {
	m := newTestModel(t)
	if _, err := m.session.Submit(context.Background(), "question"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	m = drain(m)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd == nil {
		t.Fatal("expected a reset command")
	}
	if msg, ok := cmd().(resetDoneMsg); !ok || msg.err != nil {
		t.Fatalf("unexpected reset result: %+v", msg)
	}

	m = drain(m)
	if len(m.messages) != 1 {
		t.Fatalf("expected greeting only, got %d messages", len(m.messages))
	}
}

func TestNoticeDismissal(t *testing.T) {
	m := newTestModel(t)
	notice := &chat.Notice{Kind: failure.Transport, Title: "فشل الاتصال بالخادم.", Description: "boom"}

	updated, _ := m.Update(sessionEventMsg{ev: chat.Event{Type: chat.EventNotice, Snapshot: m.session.Snapshot(), Notice: notice}})
	m = updated.(Model)
	if m.notice == nil {
		t.Fatal("expected notice to be shown")
	}
	if !strings.Contains(m.View(), "boom") {
		t.Fatal("expected notice in the view")
	}

	updated, _ = m.Update(noticeExpiredMsg{seq: m.noticeSeq - 1})
	m = updated.(Model)
	if m.notice == nil {
		t.Fatal("stale expiry must not dismiss the current notice")
	}

	updated, _ = m.Update(noticeExpiredMsg{seq: m.noticeSeq})
	m = updated.(Model)
	if m.notice != nil {
		t.Fatal("expected notice to be dismissed")
	}
}
