package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/studynotes/internal/handler"
	appI18n "github.com/pavelanni/studynotes/internal/i18n"
	"github.com/pavelanni/studynotes/internal/llm"
	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/pdf"
	"github.com/pavelanni/studynotes/internal/session"
	"github.com/pavelanni/studynotes/internal/store"
	"github.com/pavelanni/studynotes/internal/study"
)

const (
	defaultOpenAIURL = "https://api.groq.com/openai/v1"
	defaultModel     = "llama-3.3-70b-versatile"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studynotes",
		Short: "Turn lecture transcripts into study notes and quizzes",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `studynotes --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-provider", string(model.ProviderOpenAI), "LLM API flavour (openai, anthropic)")
	f.String("llm-url", "", "API base URL (default: Groq for openai, the Anthropic API for anthropic)")
	f.String("llm-key", "", "API key (or set STUDYNOTES_LLM_KEY); when empty the UI asks for one")
	f.String("llm-model", defaultModel, "LLM model name")
	f.Float64("temperature", 0.5, "Sampling temperature")
	f.Int("max-tokens", 1500, "Maximum tokens per LLM response")
	f.Bool("structured-quiz", false, "Request the quiz as JSON matching the quiz schema")
	f.Bool("require-full-quiz", false, "Reject quizzes with fewer than 10 parsed questions")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "studynotes.db", "SQLite database path")
	addLLMFlags(cmd)
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /notes)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("access-password", "", "Shared password required to use the UI (or set STUDYNOTES_ACCESS_PASSWORD)")
	f.Duration("session-ttl", 2*time.Hour, "Idle lifetime of a browser session")
	f.Int64("max-upload-mb", 2, "Maximum transcript size in MiB")
	addLogFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write notes and quiz PDFs for a transcript without the web UI",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("transcript", "t", "", "Path to the transcript text file (required)")
	f.StringP("out", "o", ".", "Output directory for the PDFs")
	addLLMFlags(cmd)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("transcript")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submitted quiz results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "studynotes.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Int64("id", 0, "Export only the result with this ID")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("STUDYNOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("studynotes")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/studynotes")
	v.AddConfigPath("/etc/studynotes")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newCompleter builds the LLM client from the llm-* flags.
func newCompleter(v *viper.Viper) (llm.Completer, llm.Config, error) {
	cfg := llm.Config{
		Provider:    model.Provider(strings.ToLower(strings.TrimSpace(v.GetString("llm-provider")))),
		BaseURL:     v.GetString("llm-url"),
		Model:       v.GetString("llm-model"),
		Temperature: v.GetFloat64("temperature"),
		MaxTokens:   v.GetInt("max-tokens"),
	}
	if cfg.BaseURL == "" && cfg.Provider != model.ProviderAnthropic {
		cfg.BaseURL = defaultOpenAIURL
	}
	c, err := llm.New(cfg)
	return c, cfg, err
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	completer, llmCfg, err := newCompleter(v)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	serverKey := strings.TrimSpace(v.GetString("llm-key"))
	if pinger, ok := completer.(interface {
		Ping(ctx context.Context, apiKey string) error
	}); ok && serverKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := pinger.Ping(ctx, serverKey)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", llmCfg.BaseURL, "model", llmCfg.Model)
	}

	if err := db.SetServerInfo(model.ServerInfo{
		Provider:       string(llmCfg.Provider),
		Model:          llmCfg.Model,
		StructuredQuiz: v.GetBool("structured-quiz"),
		StartedAt:      time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("record server info: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	var passwordHash []byte
	if password := v.GetString("access-password"); password != "" {
		passwordHash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash access password: %w", err)
		}
	}

	appCfg := model.AppConfig{
		BasePath:        basePath,
		SecureCookies:   v.GetBool("secure-cookies"),
		ServerKey:       serverKey != "",
		AccessPassword:  len(passwordHash) > 0,
		RequireFullQuiz: v.GetBool("require-full-quiz"),
		SessionTTL:      v.GetDuration("session-ttl"),
		MaxUploadBytes:  v.GetInt64("max-upload-mb") << 20,
		Model:           llmCfg.Model,
	}

	svc := study.New(completer, db, study.Config{
		ServerKey:       serverKey,
		StructuredQuiz:  v.GetBool("structured-quiz"),
		RequireFullQuiz: appCfg.RequireFullQuiz,
	})
	sessions := session.NewRegistry(appCfg.SessionTTL)

	h, err := handler.New(db, svc, sessions, appCfg, passwordHash)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sessions.Run(ctx, time.Minute)
	go cleanupAuthSessions(ctx, db, time.Hour)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Mount(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"provider", llmCfg.Provider,
		"model", llmCfg.Model,
		"llm_url", llmCfg.BaseURL,
		"server_key", appCfg.ServerKey,
		"structured_quiz", v.GetBool("structured-quiz"),
		"lang", lang,
		"base_path", basePath,
		"access_password", appCfg.AccessPassword,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func cleanupAuthSessions(ctx context.Context, db *store.Store, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := db.PurgeExpiredLogins()
			if err != nil {
				slog.Warn("failed to purge expired logins", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("purged expired logins", "count", n)
			}
		}
	}
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	completer, _, err := newCompleter(v)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	key := strings.TrimSpace(v.GetString("llm-key"))
	if key == "" {
		return errors.New("an API key is required: set --llm-key or STUDYNOTES_LLM_KEY")
	}

	path := v.GetString("transcript")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	data, err := study.ReadTranscript(f, 16<<20)
	f.Close()
	if err != nil {
		return err
	}

	svc := study.New(completer, nil, study.Config{
		ServerKey:       key,
		StructuredQuiz:  v.GetBool("structured-quiz"),
		RequireFullQuiz: v.GetBool("require-full-quiz"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := svc.Load(session.State{Phase: session.PhaseIdle}, filepath.Base(path), data)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	st, res, err := svc.Prepare(ctx, st, "")
	if st.Notes == "" {
		return fmt.Errorf("generate notes: %w", err)
	}

	outDir := v.GetString("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	notesPDF, perr := pdf.Notes("Study Notes", st.Notes)
	if perr != nil {
		return fmt.Errorf("render notes: %w", perr)
	}
	if werr := os.WriteFile(filepath.Join(outDir, "study_notes.pdf"), notesPDF, 0o644); werr != nil {
		return fmt.Errorf("write notes: %w", werr)
	}
	slog.Info("wrote study notes", "path", filepath.Join(outDir, "study_notes.pdf"))

	if err != nil {
		return fmt.Errorf("generate quiz: %w", err)
	}
	quizPDF, perr := pdf.Quiz("Quiz", st.Quiz, nil, false)
	if perr != nil {
		return fmt.Errorf("render quiz: %w", perr)
	}
	if werr := os.WriteFile(filepath.Join(outDir, "generated_quiz.pdf"), quizPDF, 0o644); werr != nil {
		return fmt.Errorf("write quiz: %w", werr)
	}
	slog.Info("wrote quiz", "path", filepath.Join(outDir, "generated_quiz.pdf"), "questions", len(res.Questions), "dropped", res.Dropped)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var export any
	if id := v.GetInt64("id"); id > 0 {
		result, err := db.GetResult(id)
		if err != nil {
			return fmt.Errorf("get result: %w", err)
		}
		if result == nil {
			return fmt.Errorf("result %d not found", id)
		}
		export = result
	} else {
		export, err = db.ExportResults()
		if err != nil {
			return fmt.Errorf("export results: %w", err)
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
