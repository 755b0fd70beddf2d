package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func TestFileStore_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 15; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := s.Append(ctx, "alice", role, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	t.Run("limit smaller than transcript", func(t *testing.T) {
		got, err := s.Recent(ctx, "alice", 10)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(got) != 10 {
			t.Fatalf("expected 10 turns, got %d", len(got))
		}
		for i, turn := range got {
			want := fmt.Sprintf("m%d", i+5)
			if turn.Message != want {
				t.Errorf("turn %d: expected %q, got %q", i, want, turn.Message)
			}
		}
	})

	t.Run("limit larger than transcript", func(t *testing.T) {
		got, _ := s.Recent(ctx, "alice", 100)
		if len(got) != 15 {
			t.Errorf("expected 15 turns, got %d", len(got))
		}
	})

	t.Run("zero limit", func(t *testing.T) {
		got, _ := s.Recent(ctx, "alice", 0)
		if len(got) != 0 {
			t.Errorf("expected no turns, got %d", len(got))
		}
	})
}

func TestFileStore_MissingSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	recent, err := s.Recent(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("Recent on missing session failed: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("expected empty transcript, got %d turns", len(recent))
	}

	all, err := s.LoadAll(ctx, "nobody")
	if err != nil {
		t.Fatalf("LoadAll on missing session failed: %v", err)
	}
	if all == nil || len(all) != 0 {
		t.Errorf("expected non-nil empty slice, got %v", all)
	}
}

func TestFileStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Append(ctx, "bob", RoleUser, "hello")
	s.Append(ctx, "bob", RoleAssistant, "hi")

	if err := s.Clear(ctx, "bob"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(s.Path("bob")); !os.IsNotExist(err) {
		t.Error("expected transcript file to be removed")
	}

	all, _ := s.LoadAll(ctx, "bob")
	if len(all) != 0 {
		t.Errorf("expected empty transcript after clear, got %d", len(all))
	}
	recent, _ := s.Recent(ctx, "bob", 5)
	if len(recent) != 0 {
		t.Errorf("expected empty recent after clear, got %d", len(recent))
	}

	// Idempotent
	if err := s.Clear(ctx, "bob"); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
}

func TestFileStore_FileFormat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Append(ctx, "carol", RoleUser, "Привет")

	data, err := os.ReadFile(s.Path("carol"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var raw []map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("transcript is not a JSON list: %v", err)
	}
	if len(raw) != 1 || raw[0]["role"] != "user" || raw[0]["message"] != "Привет" {
		t.Errorf("unexpected transcript content: %v", raw)
	}
}

func TestFileStore_InvalidRole(t *testing.T) {
	s := newTestStore(t)
	err := s.Append(context.Background(), "dave", Role("system"), "x")
	if _, ok := err.(ErrInvalidRole); !ok {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	os.WriteFile(s.Path("eve"), []byte("{not json"), 0600)

	if _, err := s.LoadAll(ctx, "eve"); err == nil {
		t.Error("expected decode error for corrupt transcript")
	}
	if err := s.Append(ctx, "eve", RoleUser, "x"); err == nil {
		t.Error("expected Append to surface the read failure")
	}
}

func TestFileStore_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Append(ctx, "a", RoleUser, "from a")
	s.Append(ctx, "b", RoleUser, "from b")

	a, _ := s.LoadAll(ctx, "a")
	b, _ := s.LoadAll(ctx, "b")
	if len(a) != 1 || a[0].Message != "from a" {
		t.Errorf("session a: unexpected turns %v", a)
	}
	if len(b) != 1 || b[0].Message != "from b" {
		t.Errorf("session b: unexpected turns %v", b)
	}
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(ctx, "busy", RoleUser, fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	all, _ := s.LoadAll(ctx, "busy")
	if len(all) != 20 {
		t.Errorf("expected 20 turns after concurrent appends, got %d", len(all))
	}
}

func TestTail(t *testing.T) {
	turns := []Turn{{RoleUser, "1"}, {RoleAssistant, "2"}, {RoleUser, "3"}}

	got := Tail(turns, 2)
	if len(got) != 2 || got[0].Message != "2" || got[1].Message != "3" {
		t.Errorf("unexpected tail: %v", got)
	}

	got[0].Message = "changed"
	if turns[1].Message != "2" {
		t.Error("Tail must return a copy")
	}

	if len(Tail(nil, 3)) != 0 {
		t.Error("expected empty tail for nil input")
	}
}
