package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/felixgeelhaar/mnemo/internal/runtime"
	"github.com/felixgeelhaar/mnemo/internal/transcript"
)

type fakeRuntime struct {
	turns    []string
	mode     runtime.Mode
	recent   []transcript.Turn
	summary  string
	cleared  bool
	turnErr  error
	clearErr error
}

func (f *fakeRuntime) HandleTurn(ctx context.Context, sessionID, message string) (string, error) {
	if f.turnErr != nil {
		return "", f.turnErr
	}
	f.turns = append(f.turns, message)
	return "reply to " + message, nil
}

func (f *fakeRuntime) SetMode(sessionID string, mode runtime.Mode) string {
	f.mode = mode
	return mode.Greeting()
}

func (f *fakeRuntime) Recent(ctx context.Context, sessionID string) ([]transcript.Turn, error) {
	return f.recent, nil
}

func (f *fakeRuntime) SummarizeDialogue(ctx context.Context, sessionID string) (string, error) {
	return f.summary, nil
}

func (f *fakeRuntime) ClearSession(ctx context.Context, sessionID string) error {
	f.cleared = true
	return f.clearErr
}

func TestDispatch_Routing(t *testing.T) {
	tests := []struct {
		input    string
		contains string
		exit     bool
		isTurn   bool
	}{
		{"/help", "/mode mentor", false, false},
		{"  /HELP  ", "/summary", false, false},
		{"/exit", "Goodbye", true, false},
		{"exit", "Goodbye", true, false},
		{"/mentor", "/mode mentor", false, false},
		{"/funny", "/mode", false, false},
		{"/mode", "Available modes", false, false},
		{"/mode pirate", "Unknown conversation mode", false, false},
		{"/mode Reflection", "Mode 'reflection' activated", false, false},
		{"/save", "Memory is empty", false, false},
		{"/summary", "Memory is empty", false, false},
		{"/clear", "Memory cleared", false, false},
		{"What is the capital of France?", "reply to What is the capital of France?", false, true},
		{"/unknown", "reply to /unknown", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			rt := &fakeRuntime{}
			d := New(rt, t.TempDir())

			res, err := d.Dispatch(context.Background(), "s", tt.input)
			if err != nil {
				t.Fatalf("Dispatch(%q) failed: %v", tt.input, err)
			}
			if !strings.Contains(res.Reply, tt.contains) {
				t.Errorf("Dispatch(%q) reply = %q, want it to contain %q", tt.input, res.Reply, tt.contains)
			}
			if res.Exit != tt.exit {
				t.Errorf("Dispatch(%q) exit = %v, want %v", tt.input, res.Exit, tt.exit)
			}
			if (len(rt.turns) == 1) != tt.isTurn {
				t.Errorf("Dispatch(%q) turns = %v, want turn %v", tt.input, rt.turns, tt.isTurn)
			}
		})
	}
}

func TestDispatch_ModeSwitch(t *testing.T) {
	rt := &fakeRuntime{}
	d := New(rt, t.TempDir())

	res, _ := d.Dispatch(context.Background(), "s", "/mode funny")
	if rt.mode != runtime.ModeFunny {
		t.Errorf("expected funny mode, got %q", rt.mode)
	}
	if !strings.Contains(res.Reply, runtime.ModeFunny.Greeting()) {
		t.Errorf("expected greeting in reply, got %q", res.Reply)
	}
}

func TestDispatch_Save(t *testing.T) {
	dir := t.TempDir()
	rt := &fakeRuntime{recent: []transcript.Turn{
		{Role: transcript.RoleUser, Message: "hi"},
		{Role: transcript.RoleAssistant, Message: "hello"},
	}}
	d := New(rt, dir)

	res, err := d.Dispatch(context.Background(), "alice", "/save")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	path := ExportPath(dir, "alice")
	if !strings.Contains(res.Reply, path) {
		t.Errorf("expected path in reply, got %q", res.Reply)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if string(data) != "User: hi\nAssistant: hello" {
		t.Errorf("unexpected export %q", data)
	}
}

func TestDispatch_Summary(t *testing.T) {
	rt := &fakeRuntime{summary: "The user said hi."}
	d := New(rt, t.TempDir())

	res, _ := d.Dispatch(context.Background(), "s", "/summary")
	if res.Reply != "Summary:\nThe user said hi." {
		t.Errorf("unexpected reply %q", res.Reply)
	}
}

func TestDispatch_Errors(t *testing.T) {
	genErr := fmt.Errorf("%w: timeout", runtime.ErrGeneration)
	rt := &fakeRuntime{turnErr: genErr, clearErr: fmt.Errorf("%w: disk", runtime.ErrDurability)}
	d := New(rt, t.TempDir())

	_, err := d.Dispatch(context.Background(), "s", "hello")
	if !errors.Is(err, runtime.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if got := ErrorReply(err); !strings.Contains(got, "try again") {
		t.Errorf("expected retry hint, got %q", got)
	}

	_, err = d.Dispatch(context.Background(), "s", "/clear")
	if got := ErrorReply(err); !strings.HasPrefix(got, "ERROR: memory could not be saved") {
		t.Errorf("expected loud durability error, got %q", got)
	}
	if ErrorReply(nil) != "" {
		t.Error("expected empty reply for nil error")
	}
}

func TestFormatTranscript(t *testing.T) {
	if got := FormatTranscript(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
