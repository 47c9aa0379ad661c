// Command babynest-assistant runs the BabyNest chat assistant as an
// interactive terminal session: messages typed on stdin flow through the
// resolution chain and replies print to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BabyNest/assistant/internal/actions"
	"github.com/BabyNest/assistant/internal/backend"
	"github.com/BabyNest/assistant/internal/dialog"
	"github.com/BabyNest/assistant/internal/embedding"
	"github.com/BabyNest/assistant/internal/engine"
	"github.com/BabyNest/assistant/internal/genai"
	"github.com/BabyNest/assistant/internal/models"
	"github.com/BabyNest/assistant/internal/rag"
	"github.com/BabyNest/assistant/internal/scheduler"
	"github.com/BabyNest/assistant/internal/store"
	"github.com/BabyNest/assistant/internal/util"
	"github.com/BabyNest/assistant/internal/vectorstore"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for assistant state data
	DefaultStateDir = "/var/lib/babynest-assistant"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "assistant.db"
	// DefaultBackendURL is the default BabyNest API server address
	DefaultBackendURL = "http://localhost:5001"
	// DefaultDialogSweepCron sweeps stale dialogs every five minutes
	DefaultDialogSweepCron = "*/5 * * * *"
	// DefaultDialogMaxAgeMinutes is how long an idle dialog survives
	DefaultDialogMaxAgeMinutes = 10
)

// Config holds environment configuration
type Config struct {
	BackendURL  string
	DbDriver    string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	UserID      string
	UseMocks    bool
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	backendURL := flag.String("backend-url", config.BackendURL, "BabyNest API server base URL")
	dbDriver := flag.String("db-driver", config.DbDriver, "chat history driver: sqlite3, postgres, or memory")
	dbDSN := flag.String("db-dsn", config.DatabaseURL, "database DSN (file path for sqlite3)")
	stateDir := flag.String("state-dir", config.StateDir, "directory for assistant state data")
	openaiKey := flag.String("openai-key", config.OpenAIKey, "OpenAI API key for real embedding/generation modes")
	userID := flag.String("user-id", config.UserID, "user id this session belongs to")
	useMocks := flag.Bool("mock", config.UseMocks, "use deterministic mock embedding and generation")
	flag.Parse()

	if *useMocks && *openaiKey == "" {
		slog.Info("Running with mock providers")
	}

	st, err := buildStore(*dbDriver, *dbDSN, *stateDir)
	if err != nil {
		slog.Error("Failed to open chat history store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	encoder, generator, err := buildProviders(*useMocks, *openaiKey)
	if err != nil {
		slog.Error("Failed to build model providers", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	embedder := embedding.NewService(encoder)
	vstore := vectorstore.New(vectorstore.WithDimension(encoder.Dimension()))
	dialogs := dialog.NewManager(nil)
	remote := backend.NewClient(backend.WithBaseURL(*backendURL))
	executor := actions.NewExecutor(remote)
	retrieval := rag.New(embedder, vstore, dialogs, executor)

	if err := retrieval.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize retrieval stage", "error", err)
		os.Exit(1)
	}
	if err := generator.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize generator", "error", err)
		os.Exit(1)
	}

	eng := engine.New(*userID, st, retrieval, generator, engine.WithRemote(remote))
	if err := eng.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize chat engine", "error", err)
		os.Exit(1)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	maxAge := util.ParseIntEnv("DIALOG_MAX_AGE_MINUTES", DefaultDialogMaxAgeMinutes)
	if err := sched.AddJob(DefaultDialogSweepCron, func() {
		dialogs.CleanupInactiveDialogs(minutes(maxAge))
	}); err != nil {
		slog.Error("Failed to schedule dialog sweep", "error", err)
		os.Exit(1)
	}

	if initialized, err := remote.Health(ctx); err != nil {
		slog.Warn("Backend unreachable, remote stage will degrade", "error", err)
	} else {
		slog.Info("Backend reachable", "agentInitialized", initialized)
	}

	runREPL(ctx, eng)
}

// runREPL reads user messages from stdin until EOF or /quit.
func runREPL(ctx context.Context, eng *engine.ChatEngine) {
	fmt.Println("BabyNest assistant ready. Type a message, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/clear":
			if err := eng.ClearHistory(); err != nil {
				slog.Warn("Failed to clear history", "error", err)
			}
			fmt.Println("History cleared.")
			continue
		}

		result, err := eng.SendMessage(ctx, line)
		if err != nil {
			if err == models.ErrEmptyMessage {
				continue
			}
			slog.Error("Message resolution failed", "error", err)
			continue
		}
		fmt.Println(result.Message)
		if len(result.QuickReplies) > 0 {
			fmt.Printf("  [%s]\n", strings.Join(result.QuickReplies, " | "))
		}
	}
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	stateDir := os.Getenv("BABYNEST_STATE_DIR")
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	backendURL := os.Getenv("BABYNEST_API_URL")
	if backendURL == "" {
		backendURL = DefaultBackendURL
	}
	dbDriver := os.Getenv("DB_DRIVER")
	if dbDriver == "" {
		dbDriver = "sqlite3"
	}
	userID := os.Getenv("BABYNEST_USER_ID")
	if userID == "" {
		userID = "default"
	}

	return Config{
		BackendURL:  backendURL,
		DbDriver:    dbDriver,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    stateDir,
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		UserID:      userID,
		UseMocks:    util.ParseBoolEnv("BABYNEST_USE_MOCKS", true),
	}
}

// buildStore opens the chat history store for the configured driver.
func buildStore(driver, dsn, stateDir string) (store.Store, error) {
	switch driver {
	case "sqlite3":
		if dsn == "" {
			dsn = filepath.Join(stateDir, DefaultDBFileName)
		}
		return store.NewSQLiteStore(store.WithDSN(dsn))
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(dsn))
	case "memory":
		return store.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}

// buildProviders selects mock or OpenAI-backed embedding and generation.
func buildProviders(useMocks bool, openaiKey string) (embedding.Encoder, genai.Generator, error) {
	if useMocks || openaiKey == "" {
		return embedding.NewMockEncoder(embedding.DefaultDimension), genai.NewMockGenerator(), nil
	}
	encoder, err := embedding.NewOpenAIEncoder(openaiKey, embedding.DefaultDimension)
	if err != nil {
		return nil, nil, err
	}
	generator, err := genai.NewOpenAIGenerator(openaiKey)
	if err != nil {
		return nil, nil, err
	}
	return encoder, generator, nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
