package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/felixgeelhaar/mnemo/internal/command"
	"github.com/felixgeelhaar/mnemo/internal/config"
	"github.com/felixgeelhaar/mnemo/internal/credential"
	"github.com/felixgeelhaar/mnemo/internal/embedding"
	"github.com/felixgeelhaar/mnemo/internal/embedding/onnx"
	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/provider"
	"github.com/felixgeelhaar/mnemo/internal/runtime"
	"github.com/felixgeelhaar/mnemo/internal/store"
	"github.com/felixgeelhaar/mnemo/internal/summarize"
	"github.com/felixgeelhaar/mnemo/internal/transcript"
)

// app is the wired process: configuration, persistence and the runtime.
type app struct {
	cfg        config.Config
	obs        *observe.Observer
	metrics    *observe.Metrics
	store      *store.SQLiteStore
	vault      *credential.Vault
	provider   provider.Provider
	runtime    *runtime.Runtime
	dispatcher *command.Dispatcher

	closers []func()
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.Log.Verbose = true
	}
	if jsonLogs {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

func newObserver(cfg config.Config, out io.Writer) *observe.Observer {
	if cfg.Log.JSON {
		return observe.NewJSON(out, cfg.Log.Verbose)
	}
	return observe.New(out, cfg.Log.Verbose)
}

func newVault(s *store.SQLiteStore) (*credential.Vault, error) {
	var (
		m   *credential.Manager
		err error
	)
	if secret := os.Getenv("MNEMO_SECRET"); secret != "" {
		m, err = credential.NewManagerFromPassphrase(secret)
	} else {
		m, err = credential.NewManager()
	}
	if err != nil {
		return nil, err
	}
	return credential.NewVault(s, m), nil
}

// openStore opens the catalog only, for commands that need no provider.
func openStore(cfg config.Config) (*store.SQLiteStore, *credential.Vault, error) {
	s, err := store.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init store: %w", err)
	}
	v, err := newVault(s)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, v, nil
}

// openApp wires every component named by cfg. Callers must Close it.
func openApp(cfg config.Config, obs *observe.Observer) (a *app, err error) {
	res := cfg.Validate()
	for _, w := range res.Warnings {
		obs.Log().Warn().Str("config", "warning").Msg(w)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	built := &app{cfg: cfg, obs: obs, metrics: observe.NewMetrics()}
	defer func() {
		if err != nil {
			built.Close()
		}
	}()
	a = built

	a.store, a.vault, err = openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.store.Close() })

	a.provider, err = newProvider(cfg.Provider, a.vault)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	emb, err := a.newEmbedder()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var sum summarize.Summarizer = summarize.Passthrough
	if !cfg.Summarizer.Disabled {
		sum = summarize.New(a.provider, summarize.Config{
			Temperature: cfg.Summarizer.Temperature,
			MaxTokens:   cfg.Summarizer.MaxTokens,
		}, obs, a.metrics)
	}

	var mem memory.Memory
	switch cfg.Memory.Backend {
	case "chromem":
		mem, err = memory.NewChromem(cfg.ChromemDir(), emb, sum, obs, a.metrics)
	default:
		mem, err = memory.NewFlat(cfg.VectorDir(), emb, sum, obs, a.metrics)
	}
	if err != nil {
		return nil, err
	}

	ts, err := transcript.NewFileStore(cfg.TranscriptDir())
	if err != nil {
		return nil, err
	}

	a.runtime = runtime.New(ts, mem, a.provider, obs, runtime.Config{
		TopK:        cfg.Memory.TopK,
		RecentLimit: cfg.Memory.RecentLimit,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
	})
	a.runtime.SetMetrics(a.metrics)
	a.dispatcher = command.New(a.runtime, cfg.ExportDir())

	obs.Log().Debug().
		Str("provider", a.provider.Name()).
		Str("embedding", cfg.ResolvedEmbedding().Backend).
		Str("memory", cfg.Memory.Backend).
		Str("data_dir", cfg.DataDir).
		Msg("mnemo initialized")
	return a, nil
}

func (a *app) newEmbedder() (embedding.Embedder, error) {
	cfg := a.cfg.ResolvedEmbedding()

	var base embedding.Embedder
	switch cfg.Backend {
	case "provider":
		base = embedding.NewProviderEmbedder(a.provider, cfg.Dimensions)
	case "onnx":
		oc := cfg.ONNX
		if oc.Dimensions == 0 {
			oc.Dimensions = cfg.Dimensions
		}
		e, err := onnx.New(oc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = e.Close() })
		base = e
	default:
		base = embedding.NewHashEmbedder(cfg.Dimensions)
	}

	if cfg.CacheSize <= 0 {
		return base, nil
	}
	cached, err := embedding.NewCached(base, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cached.Close)
	return cached, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// secret reads an API key from the vault, falling back to the environment.
func secret(v *credential.Vault, key, env string) string {
	if v != nil {
		if val, err := v.Get(key); err == nil && val != "" {
			return val
		}
	}
	return os.Getenv(env)
}

func newProvider(cfg config.ProviderConfig, v *credential.Vault) (provider.Provider, error) {
	model := cfg.EffectiveModel()
	switch cfg.Name {
	case "openai":
		return provider.NewOpenAIProvider(secret(v, "openai.api_key", "OPENAI_API_KEY"), cfg.BaseURL, model)
	case "ollama":
		return provider.NewOllamaProvider(model)
	case "anthropic":
		return provider.NewAnthropicProvider(secret(v, "anthropic.api_key", "ANTHROPIC_API_KEY"), cfg.BaseURL, model)
	case "gemini":
		return provider.NewGeminiProvider(secret(v, "gemini.api_key", "GEMINI_API_KEY"), model)
	case "cli":
		return detectCLIProvider(cfg.CLIPath)
	case "stub":
		return provider.NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

var errNoCLI = errors.New("no local CLI agents detected (tried claude, codex, gemini, llm)")

func detectCLIProvider(cliPath string) (provider.Provider, error) {
	if cliPath != "" {
		return provider.NewCLIProvider(cliPath, []string{})
	}

	tools := []string{"claude", "codex", "gemini", "llm"}
	for _, t := range tools {
		path, err := exec.LookPath(t)
		if err == nil {
			return provider.NewCLIProvider(path, []string{})
		}
	}

	return nil, errNoCLI
}
