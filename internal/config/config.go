// Package config reads the gateway settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/forge-ai/uigen/internal/llm"
)

type Config struct {
	Port            string
	AMQPURL         string
	AMQPAttempts    int
	CredentialsFile string
	InstructionFile string
	AllowedOrigin   string
	Timeout         time.Duration
	StreamTimeout   time.Duration
	Debug           bool

	// BaseURLs overrides the default endpoint per provider.
	BaseURLs map[llm.ProviderID]string
	// ExtraModels extends the model catalog per provider.
	ExtraModels map[llm.ProviderID][]string
	// Disabled providers are served by a stub adapter.
	Disabled map[llm.ProviderID]bool
}

func ConfigFromEnv() Config {
	cfg := Config{
		Port:            env("PORT", "8080"),
		AMQPURL:         env("AMQP_URL", ""),
		AMQPAttempts:    envInt("AMQP_ATTEMPTS", 5),
		CredentialsFile: env("CREDENTIALS_FILE", ""),
		InstructionFile: env("SYSTEM_INSTRUCTION_FILE", ""),
		AllowedOrigin:   env("ALLOWED_ORIGIN", "*"),
		Timeout:         envDuration("LLM_TIMEOUT", 60*time.Second),
		StreamTimeout:   envDuration("LLM_STREAM_TIMEOUT", 5*time.Minute),
		Debug:           env("DEBUG", "") == "1",
		BaseURLs:        map[llm.ProviderID]string{},
		ExtraModels:     map[llm.ProviderID][]string{},
		Disabled:        map[llm.ProviderID]bool{},
	}
	for _, p := range llm.Providers {
		prefix := strings.ToUpper(string(p))
		if u := env(prefix+"_BASE_URL", ""); u != "" {
			cfg.BaseURLs[p] = u
		}
		if models := envList(prefix + "_MODELS"); len(models) > 0 {
			cfg.ExtraModels[p] = models
		}
	}
	for _, name := range envList("DISABLED_PROVIDERS") {
		if p, ok := llm.ParseProviderID(name); ok {
			cfg.Disabled[p] = true
		}
	}
	return cfg
}

// AdapterOptions returns the adapter settings for p.
func (c Config) AdapterOptions(p llm.ProviderID) []llm.AdapterOption {
	opts := []llm.AdapterOption{
		llm.WithTimeout(c.Timeout),
		llm.WithStreamTimeout(c.StreamTimeout),
	}
	if u := c.BaseURLs[p]; u != "" {
		opts = append(opts, llm.WithBaseURL(u))
	}
	return opts
}

// Instruction returns the system instruction override, or "" to keep the
// built-in one.
func (c Config) Instruction() (string, error) {
	if c.InstructionFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(c.InstructionFile)
	if err != nil {
		return "", fmt.Errorf("read system instruction: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Registry builds the dispatch table for every known provider.
func (c Config) Registry() (*llm.Registry, error) {
	rows := make([]llm.Provider, 0, len(llm.Providers))
	for _, p := range llm.Providers {
		var a llm.Adapter
		switch {
		case c.Disabled[p]:
			a = llm.Unimplemented{Provider: p}
		case p == llm.OpenAI:
			a = llm.NewOpenAI(c.AdapterOptions(p)...)
		case p == llm.Anthropic:
			a = llm.NewAnthropic(c.AdapterOptions(p)...)
		case p == llm.Gemini:
			a = llm.NewGemini(c.AdapterOptions(p)...)
		}
		rows = append(rows, llm.NewProvider(p, a, c.ExtraModels[p]...))
	}
	return llm.NewRegistry(rows...)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		n, _ := strconv.Atoi(v)
		if n > 0 {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envList(k string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(k), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
