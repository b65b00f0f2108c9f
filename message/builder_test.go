package message

import (
	"errors"
	"testing"

	"chatstore/models"
	"chatstore/storage"
)

func TestBuildComputesExpiration(t *testing.T) {
	b := NewBuilder(&models.Thread{ID: "thread-1"})
	b.SetTimestamp(1000)
	b.SetReceivedAt(2000)
	b.SetBody("hello")
	b.SetExpiration(30, 5000, false)

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.ExpiresAt() != 35000 {
		t.Fatalf("expected expires_at 35000, got %d", m.ExpiresAt())
	}
	if !m.HasPerConversationExpiration() {
		t.Fatalf("expected per-conversation expiration")
	}
	if m.ShouldStartExpireTimer() {
		t.Fatalf("timer already started, should not start again")
	}
	if body, ok := m.Body(); !ok || body != "hello" {
		t.Fatalf("unexpected body %q (%v)", body, ok)
	}
}

func TestShouldStartExpireTimerBeforeStart(t *testing.T) {
	b := NewBuilder(&models.Thread{ID: "thread-1"})
	b.SetExpiration(30, 0, true)

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.ExpiresAt() != 0 {
		t.Fatalf("expected no expiry before the timer starts, got %d", m.ExpiresAt())
	}
	if !m.ShouldStartExpireTimer() {
		t.Fatalf("expected timer to start on insert")
	}
}

func TestBuilderProducesOneMessage(t *testing.T) {
	b := NewBuilder(&models.Thread{ID: "thread-1"})
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, ErrBuilderConsumed) {
		t.Fatalf("expected ErrBuilderConsumed, got %v", err)
	}

	if _, err := NewBuilder(nil).Build(); !errors.Is(err, ErrMissingThread) {
		t.Fatalf("expected ErrMissingThread, got %v", err)
	}
}

func TestRowRoundTrip(t *testing.T) {
	b := NewBuilder(&models.Thread{ID: "thread-1"})
	b.SetAttachmentIDs([]string{"a"})
	b.SetViewOnce(true)
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	row := m.Row(storage.RecordTypeError)
	row.RowID = 7
	row.UniqueID = "unique-1"

	restored := FromRow(row)
	if restored.SortID() != 7 || !restored.IsPersisted() || restored.UniqueID() != "unique-1" {
		t.Fatalf("unexpected restored identity %+v", restored)
	}
	if ids := restored.AttachmentIDs(); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("unexpected attachment ids %v", ids)
	}
	if !restored.IsViewOnceMessage() {
		t.Fatalf("expected view-once flag to survive")
	}
}
