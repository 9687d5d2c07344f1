package ravel_test

import (
	"path/filepath"
	"testing"

	"github.com/ravelhq/ravel"
)

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ravel.db")

	store, err := ravel.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestLoadNoteSchema_EmptyPath(t *testing.T) {
	schema, err := ravel.LoadNoteSchema("")
	if err != nil {
		t.Fatalf("LoadNoteSchema(\"\") failed: %v", err)
	}
	if schema == nil {
		t.Fatal("expected non-nil schema")
	}
}

func TestNewServer(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ravel.db")
	store, err := ravel.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	schema, err := ravel.LoadNoteSchema("")
	if err != nil {
		t.Fatalf("LoadNoteSchema failed: %v", err)
	}

	srv := ravel.NewServer(store, schema, nil, 1)
	if srv == nil {
		t.Fatal("expected non-nil server")
	}
}

func TestRoleConstants(t *testing.T) {
	cases := map[ravel.Role]string{
		ravel.RoleQueue:    "queue",
		ravel.RoleWork:     "work",
		ravel.RoleReview:   "review",
		ravel.RoleBlocked:  "blocked",
		ravel.RoleTerminal: "terminal",
	}
	for role, want := range cases {
		if string(role) != want {
			t.Errorf("role = %q, want %q", role, want)
		}
	}
}

func TestTriggerConstants(t *testing.T) {
	cases := map[ravel.Trigger]string{
		ravel.TriggerStart:    "start",
		ravel.TriggerComplete: "complete",
		ravel.TriggerBlock:    "block",
		ravel.TriggerHold:     "hold",
		ravel.TriggerResume:   "resume",
		ravel.TriggerCancel:   "cancel",
	}
	for trigger, want := range cases {
		if string(trigger) != want {
			t.Errorf("trigger = %q, want %q", trigger, want)
		}
	}
}

func TestDependencyTypeConstants(t *testing.T) {
	if ravel.DepBlocks != "BLOCKS" {
		t.Errorf("DepBlocks = %q, want BLOCKS", ravel.DepBlocks)
	}
	if ravel.DepIsBlockedBy != "IS_BLOCKED_BY" {
		t.Errorf("DepIsBlockedBy = %q, want IS_BLOCKED_BY", ravel.DepIsBlockedBy)
	}
	if ravel.DepRelatesTo != "RELATES_TO" {
		t.Errorf("DepRelatesTo = %q, want RELATES_TO", ravel.DepRelatesTo)
	}
}
