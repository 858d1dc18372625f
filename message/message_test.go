package message

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "Hello, world!")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}

	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}

	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	msg := NewMessage(RoleAssistant, "original")
	msg.Metadata["lang"] = "en"

	cloned := Clone(msg)
	cloned.Content = "changed"
	cloned.Metadata["lang"] = "ru"

	if msg.Content != "original" {
		t.Errorf("Expected original content untouched, got '%s'", msg.Content)
	}
	if msg.Metadata["lang"] != "en" {
		t.Errorf("Expected original metadata untouched, got %v", msg.Metadata["lang"])
	}
}

func TestCloneMessagesNilSafe(t *testing.T) {
	if CloneMessages(nil) != nil {
		t.Error("Expected nil for empty input")
	}

	msgs := []*Message{NewMessage(RoleUser, "a"), NewMessage(RoleSystem, "b")}
	clones := CloneMessages(msgs)
	if len(clones) != 2 {
		t.Fatalf("Expected 2 clones, got %d", len(clones))
	}
	if clones[0] == msgs[0] {
		t.Error("Expected clones to be distinct pointers")
	}
}
