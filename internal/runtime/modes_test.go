package runtime

import (
	"strings"
	"sync"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"default", ModeDefault, false},
		{" Mentor ", ModeMentor, false},
		{"FUNNY", ModeFunny, false},
		{"reflection", ModeReflection, false},
		{"pirate", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseMode_ErrorListsModes(t *testing.T) {
	_, err := ParseMode("pirate")
	if err == nil || !strings.Contains(err.Error(), "mentor") {
		t.Errorf("expected error listing modes, got %v", err)
	}
}

func TestMode_InstructionAndGreeting(t *testing.T) {
	for _, m := range AllModes {
		if m.Instruction() == "" {
			t.Errorf("mode %s has no instruction", m)
		}
		if m.Greeting() == "" {
			t.Errorf("mode %s has no greeting", m)
		}
	}
	if Mode("bogus").Instruction() != ModeDefault.Instruction() {
		t.Error("unknown mode should fall back to the default instruction")
	}
}

func TestModes(t *testing.T) {
	m := NewModes()

	if got := m.Get("alice"); got != ModeDefault {
		t.Errorf("expected default for unset session, got %s", got)
	}

	m.Set("alice", ModeFunny)
	if got := m.Get("alice"); got != ModeFunny {
		t.Errorf("expected funny, got %s", got)
	}
	if got := m.Get("bob"); got != ModeDefault {
		t.Errorf("mode leaked across sessions: %s", got)
	}

	m.Reset("alice")
	if got := m.Get("alice"); got != ModeDefault {
		t.Errorf("expected default after reset, got %s", got)
	}
}

func TestModes_Concurrent(t *testing.T) {
	m := NewModes()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Set("s", ModeMentor)
		}()
		go func() {
			defer wg.Done()
			_ = m.Get("s")
		}()
	}
	wg.Wait()
	if m.Get("s") != ModeMentor {
		t.Error("expected mentor after concurrent sets")
	}
}
