// chat is a terminal chat session against the completion gateway. Every
// successful turn produces one component file in the output directory.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/forge-ai/uigen/internal/api"
	"github.com/forge-ai/uigen/internal/chat"
	"github.com/forge-ai/uigen/internal/codegen"
	"github.com/forge-ai/uigen/internal/config"
	"github.com/forge-ai/uigen/internal/credstore"
	"github.com/forge-ai/uigen/internal/llm"
)

var (
	envFile   string
	gateway   string
	local     bool
	provider  string
	model     string
	stream    bool
	outDir    string
	credsFile string
)

var rootCmd = &cobra.Command{
	Use:          "chat",
	Short:        "Chat with a model and get UI components back",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	home, _ := os.UserHomeDir()
	f := rootCmd.Flags()
	f.StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	f.StringVar(&gateway, "gateway", "http://localhost:8080", "gateway base URL")
	f.BoolVar(&local, "local", false, "call providers in-process instead of through a gateway")
	f.StringVarP(&provider, "provider", "p", "openai", "provider: openai, anthropic or gemini")
	f.StringVarP(&model, "model", "m", "default", "model id")
	f.BoolVar(&stream, "stream", false, "print the reply as it arrives")
	f.StringVarP(&outDir, "out", "o", "components", "directory for generated components")
	f.StringVar(&credsFile, "credentials", filepath.Join(home, ".config", "uigen", "credentials.yaml"), "credentials file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	_ = godotenv.Load(envFile)

	p, ok := llm.ParseProviderID(provider)
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}

	store, err := credstore.New(credsFile)
	if err != nil {
		return err
	}
	completer, err := newCompleter(store)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		if err := store.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("credentials watch stopped")
		}
	}()

	out := cmd.OutOrStdout()
	ui := &terminal{out: out, dir: outDir, renderer: newRenderer()}

	opts := []chat.Option{chat.WithProvider(p, model)}
	if stream {
		opts = append(opts, chat.WithStreaming(func(chunk string) { fmt.Fprint(out, chunk) }))
	}
	session := chat.New(completer, ui.artifact, opts...)

	fmt.Fprintf(out, "chatting with %s (%s). /help for commands.\n", p, model)
	return repl(ctx, cmd.InOrStdin(), out, session, store, ui)
}

func newCompleter(store *credstore.Store) (chat.Completer, error) {
	if !local {
		return api.NewClient(gateway, store), nil
	}
	cfg := config.ConfigFromEnv()
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	instr, err := cfg.Instruction()
	if err != nil {
		return nil, err
	}
	return llm.New(reg, store, llm.WithInstruction(instr)), nil
}

func repl(ctx context.Context, in io.Reader, out io.Writer, s *chat.Session, store *credstore.Store, ui *terminal) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := command(out, line, s, store); quit {
				return nil
			}
			continue
		}

		before := len(s.History())
		ui.delivered = false
		if err := s.Send(ctx, line); err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		s.Wait()
		if ctx.Err() != nil {
			return nil
		}

		h := s.History()
		if len(h) > before+1 {
			reply := h[len(h)-1].Content
			switch {
			case stream && ui.delivered:
				fmt.Fprintln(out)
			case stream:
				fmt.Fprintln(out, reply)
			default:
				fmt.Fprint(out, ui.render(reply))
			}
		}
	}
}

func command(out io.Writer, line string, s *chat.Session, store *credstore.Store) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/provider":
		if len(fields) < 2 {
			p, m := s.Provider()
			fmt.Fprintf(out, "%s (%s)\n", p, m)
			return false
		}
		p, ok := llm.ParseProviderID(fields[1])
		if !ok {
			fmt.Fprintf(out, "unknown provider %q\n", fields[1])
			return false
		}
		m := "default"
		if len(fields) > 2 {
			m = fields[2]
		}
		s.SetProvider(p, m)
		fmt.Fprintf(out, "now using %s (%s)\n", p, m)
	case "/key":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: /key <provider> [key]   (no key removes it)")
			return false
		}
		p, ok := llm.ParseProviderID(fields[1])
		if !ok {
			fmt.Fprintf(out, "unknown provider %q\n", fields[1])
			return false
		}
		key := ""
		if len(fields) > 2 {
			key = fields[2]
		}
		if err := store.Set(p, key); err != nil {
			fmt.Fprintln(out, "error:", err)
			return false
		}
		fmt.Fprintf(out, "key for %s saved to %s\n", p, store.Path())
	case "/history":
		for _, m := range s.History() {
			fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
		}
	case "/help":
		fmt.Fprintln(out, "/provider [name [model]]  show or switch provider")
		fmt.Fprintln(out, "/key <provider> [key]     store or remove an API key")
		fmt.Fprintln(out, "/history                  print the conversation")
		fmt.Fprintln(out, "/quit                     leave")
	default:
		fmt.Fprintf(out, "unknown command %s\n", fields[0])
	}
	return false
}

// terminal is the rendering surface: it saves artifacts and pretty-prints
// replies.
type terminal struct {
	out       io.Writer
	dir       string
	renderer  *glamour.TermRenderer
	delivered bool // set by the session goroutine, read after Wait
}

func newRenderer() *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		log.Warn().Err(err).Msg("glamour init failed, printing plain text")
		return nil
	}
	return r
}

func (t *terminal) render(md string) string {
	if t.renderer != nil {
		if s, err := t.renderer.Render(md); err == nil {
			return s
		}
	}
	return md + "\n"
}

func (t *terminal) artifact(a codegen.Artifact) {
	t.delivered = true
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		log.Error().Err(err).Msg("create output dir")
		return
	}
	path := filepath.Join(t.dir, a.Filename)
	if err := os.WriteFile(path, []byte(a.Source+"\n"), 0o644); err != nil {
		log.Error().Err(err).Str("file", path).Msg("write component")
		return
	}
	note := ""
	if a.Origin == codegen.OriginSynthesized {
		note = " (no code in the reply, used a starter skeleton)"
	}
	fmt.Fprintf(t.out, "\n→ %s [%s]%s\n", path, a.Language, note)
}
