// Package credstore is the credential configuration store: API keys from the
// environment and from an optional YAML file that is reloaded on change.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/forge-ai/uigen/internal/llm"
)

// EnvVars names the environment variable holding each provider's key.
var EnvVars = map[llm.ProviderID]string{
	llm.OpenAI:    "OPENAI_API_KEY",
	llm.Anthropic: "ANTHROPIC_API_KEY",
	llm.Gemini:    "GEMINI_API_KEY",
}

const debounceDelay = 100 * time.Millisecond

// Store resolves provider keys. Environment variables win over the file.
type Store struct {
	path string

	mu   sync.RWMutex
	file map[llm.ProviderID]string
}

// New loads the store. path may be empty; a missing file counts as empty.
func New(path string) (*Store, error) {
	s := &Store{path: path, file: map[llm.ProviderID]string{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path is the backing file, or "".
func (s *Store) Path() string { return s.path }

// Credential implements llm.CredentialSource.
func (s *Store) Credential(p llm.ProviderID) (string, bool) {
	if name, ok := EnvVars[p]; ok {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.file[p]
	return v, v != ""
}

// Snapshot copies the currently resolvable keys.
func (s *Store) Snapshot() llm.Credentials {
	out := llm.Credentials{}
	for _, p := range llm.Providers {
		if v, ok := s.Credential(p); ok {
			out[p] = v
		}
	}
	return out
}

// Reload re-reads the file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.replace(map[llm.ProviderID]string{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	var doc map[string]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse credentials %s: %w", s.path, err)
	}
	keys := make(map[llm.ProviderID]string, len(doc))
	for name, v := range doc {
		p, ok := llm.ParseProviderID(name)
		if !ok {
			log.Warn().Str("file", s.path).Str("entry", name).Msg("unknown provider in credentials file")
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			keys[p] = v
		}
	}
	s.replace(keys)
	return nil
}

func (s *Store) replace(keys map[llm.ProviderID]string) {
	s.mu.Lock()
	s.file = keys
	s.mu.Unlock()
}

// Set stores key for p in the file, creating it with 0600 permissions.
// An empty key removes the entry.
func (s *Store) Set(p llm.ProviderID, key string) error {
	if s.path == "" {
		return errors.New("credentials: no file configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[llm.ProviderID]string, len(s.file)+1)
	for k, v := range s.file {
		next[k] = v
	}
	if key = strings.TrimSpace(key); key == "" {
		delete(next, p)
	} else {
		next[p] = key
	}

	doc := make(map[string]string, len(next))
	for k, v := range next {
		doc[string(k)] = v
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	s.file = next
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err == nil {
		err = watcher.Add(dir)
	}
	if err != nil {
		// keys from the environment and from requests still work
		log.Warn().Err(err).Str("dir", dir).Msg("credentials file not watched")
		<-ctx.Done()
		return nil
	}
	name := filepath.Clean(s.path)

	// Debounce rapid events
	debounce := time.NewTimer(debounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			debounce.Reset(debounceDelay)
		case <-debounce.C:
			if err := s.Reload(); err != nil {
				log.Warn().Err(err).Msg("credentials reload failed, keeping previous keys")
				continue
			}
			log.Info().Str("file", s.path).Msg("credentials reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("credentials watcher")
		}
	}
}
