package chat

import (
	"fmt"
	"testing"
)

func TestSessionStateTransitions(t *testing.T) {
	sess := NewSession("s1")
	if sess.Active() {
		t.Fatal("new session should have no active conversation")
	}

	sess.Bind("conv-1")
	if !sess.Active() || sess.ConversationID != "conv-1" {
		t.Fatalf("expected conv-1 to be active, got %q", sess.ConversationID)
	}

	sess.Append(Message{Role: RoleUser, Content: "hi"})
	sess.Reset("conv-2", []Message{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}})
	if sess.ConversationID != "conv-2" {
		t.Fatalf("expected conv-2 after reset, got %q", sess.ConversationID)
	}
	if got := sess.History(); len(got) != 2 || got[0].Content != "a" {
		t.Fatalf("unexpected history after reset: %+v", got)
	}
}

func TestSessionHistoryIsBounded(t *testing.T) {
	sess := NewSession("s1")
	sess.Bind("conv")

	for i := 0; i < HistoryWindow+5; i++ {
		sess.Append(Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	history := sess.History()
	if len(history) != HistoryWindow {
		t.Fatalf("expected %d messages, got %d", HistoryWindow, len(history))
	}
	if history[0].Content != "m5" || history[len(history)-1].Content != fmt.Sprintf("m%d", HistoryWindow+4) {
		t.Fatalf("expected trailing window, got first=%s last=%s", history[0].Content, history[len(history)-1].Content)
	}
}
