package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkarpov/fitbot/internal/catalog"
	"github.com/dkarpov/fitbot/internal/engine"
	"github.com/dkarpov/fitbot/internal/httpapi"
	"github.com/dkarpov/fitbot/internal/messages"
	"github.com/dkarpov/fitbot/internal/model"
	"github.com/dkarpov/fitbot/internal/operator"
	"github.com/dkarpov/fitbot/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fitbot",
		Short: "Conversational questionnaire service for fitness coaching",
	}

	serve := serveCmd()
	root.AddCommand(serve, checkCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `fitbot --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the questionnaire webhook server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("questions", "q", "", "Path to the questions JSON file (empty = built-in catalog)")
	f.String("store", "memory", "Session store backend (memory, sqlite)")
	f.String("db", "fitbot.db", "SQLite database path (sqlite store only)")
	f.Duration("session-ttl", 72*time.Hour, "Session expiry; abandoned sessions are dropped after this (0 = never)")
	f.Duration("sweep-interval", time.Hour, "How often expired sessions are purged")
	f.String("operator-url", "", "Operator webhook URL for completion reports (empty = log only)")
	f.String("operator-token", "", "Bearer token sent to the operator webhook")
	f.String("api-token", "", "Bearer token required on event requests (or set FITBOT_API_TOKEN; empty disables auth)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a questions file and exit",
		RunE:  runCheck,
	}
	f := cmd.Flags()
	f.StringP("questions", "q", "", "Path to the questions JSON file (empty = built-in catalog)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("FITBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("fitbot")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/fitbot")
	v.AddConfigPath("/etc/fitbot")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func loadCatalog(path string) ([]model.Question, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// loadMessages returns the built-in texts with any `messages.*` config
// overrides applied.
func loadMessages(v *viper.Viper) messages.Messages {
	msgs := messages.Default()
	if v.IsSet("messages") {
		if err := v.UnmarshalKey("messages", &msgs); err != nil {
			slog.Warn("invalid messages config, using defaults", "error", err)
			return messages.Default()
		}
	}
	return msgs
}

type sweeper interface {
	Sweep() int
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	questions, err := loadCatalog(v.GetString("questions"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	msgs := loadMessages(v)
	ttl := v.GetDuration("session-ttl")

	var sessions engine.Store
	var sw sweeper
	switch backend := v.GetString("store"); backend {
	case "sqlite":
		db, err := store.NewSQLite(v.GetString("db"), ttl)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer db.Close()
		sessions, sw = db, db
	case "memory":
		mem := store.NewMemory(ttl)
		sessions, sw = mem, mem
	default:
		return fmt.Errorf("unknown store backend %q", backend)
	}

	if ttl > 0 {
		go sweepLoop(sw, v.GetDuration("sweep-interval"))
	}

	var sink engine.OperatorSink
	if url := v.GetString("operator-url"); url != "" {
		sink = operator.NewWebhook(url, v.GetString("operator-token"))
	} else {
		slog.Warn("no operator webhook configured, completion reports go to the log")
		sink = operator.Log{}
	}

	eng := engine.New(questions, sessions, sink, httpapi.NewFetcher(), msgs)

	var tokenHash []byte
	if token := v.GetString("api-token"); token != "" {
		tokenHash, err = bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash api token: %w", err)
		}
	} else {
		slog.Warn("api authentication disabled: set --api-token or FITBOT_API_TOKEN")
	}

	h := httpapi.New(eng, msgs, tokenHash)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"store", v.GetString("store"),
		"questions", len(questions),
		"session_ttl", ttl,
		"operator_url", v.GetString("operator-url"),
	)
	return http.ListenAndServe(addr, r)
}

func sweepLoop(sw sweeper, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	for range time.Tick(interval) {
		if n := sw.Sweep(); n > 0 {
			slog.Info("swept expired sessions", "count", n)
		}
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	path := v.GetString("questions")
	questions, err := loadCatalog(path)
	if err != nil {
		return err
	}

	kinds := make(map[model.InputKind]int)
	skips := 0
	for _, q := range questions {
		kinds[q.Kind]++
		if q.SkipCondition != nil {
			skips++
		}
	}

	source := path
	if source == "" {
		source = "built-in catalog"
	}
	fmt.Printf("%s: %d questions OK (%d with skip conditions)\n", source, len(questions), skips)
	for kind, count := range kinds {
		fmt.Printf("  %-8s %d\n", kind, count)
	}
	return nil
}
