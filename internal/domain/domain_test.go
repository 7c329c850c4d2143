package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewProfileDerivesUsername(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name     string
		identity Identity
		want     string
	}{
		{"from claims name", Identity{ID: "u1", Name: "alice", Email: "a@example.com"}, "alice"},
		{"from email local part", Identity{ID: "u2", Email: "bob.smith@example.com"}, "bob.smith"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewProfile(tc.identity, now)
			if err != nil {
				t.Fatalf("NewProfile: %v", err)
			}
			if p.Username != tc.want {
				t.Fatalf("username = %q, want %q", p.Username, tc.want)
			}
			if p.ID != tc.identity.ID {
				t.Fatalf("id = %q, want %q", p.ID, tc.identity.ID)
			}
		})
	}
}

func TestNewProfileRejectsEmptyClaims(t *testing.T) {
	if _, err := NewProfile(Identity{ID: "u1"}, time.Now()); err == nil {
		t.Fatal("expected error for empty claims")
	}
}

func TestNewProfileTruncatesLongUsername(t *testing.T) {
	long := strings.Repeat("x", MaxUsernameLen+10)
	p, err := NewProfile(Identity{ID: "u1", Name: long}, time.Now())
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	if len(p.Username) != MaxUsernameLen {
		t.Fatalf("username length = %d, want %d", len(p.Username), MaxUsernameLen)
	}
}

func TestMessageBefore(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := Message{ID: "b", CreatedAt: base}
	later := Message{ID: "a", CreatedAt: base.Add(time.Second)}
	if !earlier.Before(&later) {
		t.Fatal("earlier timestamp should sort first")
	}

	// same timestamp: id breaks the tie
	tieA := Message{ID: "a", CreatedAt: base}
	tieB := Message{ID: "b", CreatedAt: base}
	if !tieA.Before(&tieB) || tieB.Before(&tieA) {
		t.Fatal("tie not broken by id")
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent(""); err == nil {
		t.Fatal("empty content should fail")
	}
	if err := ValidateContent(strings.Repeat("x", MaxMessageLen+1)); err == nil {
		t.Fatal("oversized content should fail")
	}
	if err := ValidateContent("hello"); err != nil {
		t.Fatalf("valid content rejected: %v", err)
	}
}
