package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/felixgeelhaar/mnemo/internal/config"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/provider"
	"github.com/felixgeelhaar/mnemo/internal/store"
)

// recordingUI keeps what the runner showed.
type recordingUI struct {
	statuses []string
	messages []string
	logs     []string
}

func (r *recordingUI) UpdateStatus(status string) { r.statuses = append(r.statuses, status) }
func (r *recordingUI) Message(speaker, text string) {
	r.messages = append(r.messages, speaker+": "+text)
}
func (r *recordingUI) Log(msg string) { r.logs = append(r.logs, msg) }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("MNEMO_SECRET", "test-secret")
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Provider.Name = "stub"
	cfg.Summarizer.Disabled = true
	cfg.Embedding.Dimensions = 16
	return cfg
}

func newTestApp(t *testing.T) (*app, *provider.StubProvider) {
	t.Helper()
	a, err := openApp(testConfig(t), observe.Discard())
	if err != nil {
		t.Fatalf("openApp failed: %v", err)
	}
	t.Cleanup(a.Close)
	stub := a.provider.(*provider.StubProvider)
	stub.Responses = nil
	return a, stub
}

func newTestRunner(a *app, input string) (*Runner, *recordingUI) {
	u := &recordingUI{}
	r := NewRunner(observe.Discard(), a.store, a.runtime, a.dispatcher, u)
	r.In = strings.NewReader(input)
	return r, u
}

func TestRunner(t *testing.T) {
	a, stub := newTestApp(t)
	stub.Responses = []provider.Response{{Content: "Paris."}}
	ctx := context.Background()

	r, u := newTestRunner(a, "Alice\nWhat is the capital of France?\n/exit\nnever read\n")
	if err := r.Run(ctx, ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(u.messages) < 4 || !strings.Contains(u.messages[0], "Hello, Alice") {
		t.Fatalf("expected greeting first, got %v", u.messages)
	}
	last := u.messages[len(u.messages)-1]
	if !strings.Contains(last, "Goodbye") {
		t.Errorf("expected goodbye last, got %q", last)
	}
	if !contains(u.messages, "bot: Paris.") {
		t.Errorf("expected reply in %v", u.messages)
	}

	turns, err := a.runtime.History(ctx, "alice")
	if err != nil || len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %v, %v", turns, err)
	}
	if _, err := a.store.GetSession("alice"); err != nil {
		t.Errorf("expected catalog entry: %v", err)
	}
}

func TestRunner_Restore(t *testing.T) {
	a, stub := newTestApp(t)
	stub.Responses = []provider.Response{{Content: "Hi."}}
	ctx := context.Background()

	r, _ := newTestRunner(a, "hello\n")
	if err := r.Run(ctx, "bob"); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	r, u := newTestRunner(a, "")
	if err := r.Run(ctx, "Bob"); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(u.logs) != 1 || !strings.Contains(u.logs[0], "Welcome back") {
		t.Errorf("expected welcome back, got %v", u.logs)
	}
	want := []string{"you: hello", "bot: Hi."}
	if len(u.messages) != 2 || u.messages[0] != want[0] || u.messages[1] != want[1] {
		t.Errorf("expected restored history %v, got %v", want, u.messages)
	}
}

func TestRunner_GenerationErrorContinues(t *testing.T) {
	a, stub := newTestApp(t)
	stub.Err = errors.New("upstream down")

	r, u := newTestRunner(a, "first\nsecond\n")
	if err := r.Run(context.Background(), "carol"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	errorsShown := 0
	for _, m := range u.messages {
		if strings.HasPrefix(m, "error: ") && strings.Contains(m, "try again") {
			errorsShown++
		}
	}
	if errorsShown != 2 {
		t.Errorf("expected two retry hints, got %v", u.messages)
	}
}

func TestRunner_RejectsEmptyName(t *testing.T) {
	a, _ := newTestApp(t)
	r, _ := newTestRunner(a, "   \n")
	if err := r.Run(context.Background(), ""); err != nil {
		t.Errorf("end of input while asking for a name should end quietly, got %v", err)
	}
}

func TestCLI_Root(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range RootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"chat", "serve", "sessions", "config"} {
		if !names[want] {
			t.Errorf("expected %s command", want)
		}
	}
}

func TestCLI_Config(t *testing.T) {
	found := false
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() == "config" {
			found = true
			if len(cmd.Commands()) < 3 {
				t.Errorf("Expected set, get and list subcommands for config, got %d", len(cmd.Commands()))
			}
		}
	}
	if !found {
		t.Error("config command not found")
	}
}

func TestNewProvider(t *testing.T) {
	a, _ := newTestApp(t)
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := newProvider(config.ProviderConfig{Name: "nope"}, a.vault); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := newProvider(config.ProviderConfig{Name: "openai"}, a.vault); err == nil {
		t.Error("expected error for openai without key")
	}

	if err := a.vault.Set("openai.api_key", "sk-test-1234567890"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	p, err := newProvider(config.ProviderConfig{Name: "openai"}, a.vault)
	if err != nil {
		t.Fatalf("expected openai with stored key, got %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("unexpected provider %q", p.Name())
	}

	if p, err := newProvider(config.ProviderConfig{Name: "cli", CLIPath: "echo"}, nil); err != nil || p.Name() != "cli-echo" {
		t.Errorf("expected cli provider, got %v, %v", p, err)
	}
}

func TestOpenApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Memory.Backend = "redis"
	if _, err := openApp(cfg, observe.Discard()); err == nil {
		t.Error("expected invalid configuration to fail")
	}
}

func TestOpenApp_Chromem(t *testing.T) {
	cfg := testConfig(t)
	cfg.Memory.Backend = "chromem"
	a, err := openApp(cfg, observe.Discard())
	if err != nil {
		t.Fatalf("openApp failed: %v", err)
	}
	defer a.Close()

	if _, err := a.runtime.HandleTurn(context.Background(), "dave", "hello"); err != nil {
		t.Errorf("HandleTurn on chromem failed: %v", err)
	}
}

func TestSessionsCommands(t *testing.T) {
	a, stub := newTestApp(t)
	stub.Responses = []provider.Response{{Content: "Noted."}}
	ctx := context.Background()

	r, _ := newTestRunner(a, "remember the milk\n")
	if err := r.Run(ctx, "erin"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var out bytes.Buffer
	if err := listSessions(&out, a.store); err != nil {
		t.Fatalf("listSessions failed: %v", err)
	}
	if !strings.Contains(out.String(), "erin") {
		t.Errorf("expected erin in listing, got %q", out.String())
	}

	path, err := exportSession(ctx, a, "erin", t.TempDir())
	if err != nil {
		t.Fatalf("exportSession failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "User: remember the milk\nAssistant: Noted.\n" {
		t.Errorf("unexpected export %q", string(data))
	}

	if err := clearSession(ctx, a, "erin"); err != nil {
		t.Fatalf("clearSession failed: %v", err)
	}
	if _, err := a.store.GetSession("erin"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected catalog entry removed, got %v", err)
	}
	if _, err := exportSession(ctx, a, "erin", t.TempDir()); err == nil {
		t.Error("expected export of cleared session to fail")
	}
}

func TestListConfig_MasksSecrets(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.vault.Set("anthropic.api_key", "sk-ant-abcdefghijkl"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := a.vault.Set("provider.name", "anthropic"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out bytes.Buffer
	if err := listConfig(&out, a.store, a.vault); err != nil {
		t.Fatalf("listConfig failed: %v", err)
	}
	got := out.String()
	if strings.Contains(got, "abcdefghijkl") {
		t.Errorf("secret leaked: %q", got)
	}
	if !strings.Contains(got, "anthropic.api_key = sk-a...ijkl") || !strings.Contains(got, "provider.name = anthropic") {
		t.Errorf("unexpected listing %q", got)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestFollowEvents(t *testing.T) {
	a, _ := newTestApp(t)
	u := &recordingUI{}
	FollowEvents(a.runtime.Events(), u)

	ctx := context.Background()
	if _, err := a.runtime.HandleTurn(ctx, "frank", "my cat is called Tom"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	a.runtime.SetMode("frank", "mentor")

	want := []string{"Thinking...", "Remembered: my cat is called Tom", "Mode: mentor"}
	if len(u.statuses) != len(want) {
		t.Fatalf("expected %v, got %v", want, u.statuses)
	}
	for i := range want {
		if u.statuses[i] != want[i] {
			t.Errorf("status %d = %q, want %q", i, u.statuses[i], want[i])
		}
	}
}
