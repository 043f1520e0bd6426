package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/internal/httpx"
	"github.com/prodonik/tierlist-client/internal/oauth"
	"github.com/prodonik/tierlist-client/internal/realtime"
	"github.com/prodonik/tierlist-client/internal/session"
	"github.com/prodonik/tierlist-client/internal/storage"
	redisstore "github.com/prodonik/tierlist-client/internal/storage/redis"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, logWriter, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting tierlist client...",
		logger.Component("main"),
	)

	// Start diagnostics cleanup job if enabled
	if logWriter != nil {
		logWriter.StartCleanupJob(ctx)
		log.Info("Diagnostics cleanup job started",
			logger.Component("main"),
			logger.Int("retention_days", cfg.Logging.RetentionDays),
		)
	}

	// Initialize credential storage
	creds, closeCreds, err := initStorage(cfg, log)
	if err != nil {
		return err
	}
	defer closeCreds()

	// Wire up the client stack
	httpClient := httpx.New(creds, &cfg.HTTP, log)
	agent := oauth.NewLoopbackAgent(&cfg.OAuth, log)
	flow := oauth.NewFlow(cfg, httpClient, agent, log)
	sessions := session.New(cfg, creds, httpClient, flow, log)
	chat := realtime.NewClient(&cfg.Chat, log)

	// Startup sequence: rehydrate, validate, connect.
	if err := sessions.LoadStoredAuth(ctx); err != nil {
		return fmt.Errorf("failed to load stored auth: %w", err)
	}

	status, err := sessions.CheckStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to check auth status: %w", err)
	}

	if status.IsAuthenticated {
		log.Info("Signed in",
			logger.Component("main"),
			logger.UserID(status.User.ID),
		)

		chat.RegisterCallback("match", func(body json.RawMessage) {
			log.Info("Match received",
				logger.Component("main"),
				logger.String("payload", string(body)),
			)
		})

		snap := sessions.Snapshot()
		if err := chat.Connect(ctx, snap.User.ID, snap.Token); err != nil {
			// Chat is best-effort at startup; the session stands on its own.
			log.Warn("Chat connection failed",
				logger.Component("main"),
				logger.Error(err),
			)
		}
	} else {
		log.Info("No valid session, sign-in required", logger.Component("main"))
	}

	// Wait for interrupt
	<-ctx.Done()
	log.Info("Shutting down...", logger.Component("main"))

	chat.Disconnect()
	if logWriter != nil {
		logWriter.Close()
	}

	log.Info("Client exited", logger.Component("main"))
	return nil
}

func initLogger(cfg *config.Config) (logger.Logger, *logger.SQLiteWriter, error) {
	logCfg := logger.Config{
		Level:           cfg.Logging.Level,
		Environment:     cfg.Logging.Environment,
		EnableConsole:   true,
		EnableSQLite:    cfg.Logging.SQLiteEnabled,
		SQLiteDBPath:    cfg.Logging.SQLiteDBPath,
		AsyncBufferSize: cfg.Logging.AsyncBufferSize,
		RetentionDays:   cfg.Logging.RetentionDays,
		FlushInterval:   100 * time.Millisecond,
		BatchSize:       100,
	}

	var writer *logger.SQLiteWriter
	var err error

	if logCfg.EnableSQLite {
		writer, err = logger.NewSQLiteWriter(logCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SQLite diagnostics writer: %w", err)
		}
	}

	log, err := logger.New(logCfg, writer)
	if err != nil {
		if writer != nil {
			writer.Close()
		}
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, writer, nil
}

// initStorage picks the credential backend: Redis when configured,
// otherwise the encrypted file store under the user's home directory.
func initStorage(cfg *config.Config, log logger.Logger) (storage.Store, func(), error) {
	if cfg.Storage.RedisAddr != "" {
		store, err := redisstore.NewStore(&cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis storage: %w", err)
		}
		log.Info("Using Redis credential storage",
			logger.Component("infrastructure"),
			logger.String("addr", cfg.Storage.RedisAddr),
		)
		return store, func() { store.Close() }, nil
	}

	passphrase := cfg.Storage.Passphrase
	if passphrase == "" {
		passphrase = defaultPassphrase()
	}
	store, err := storage.NewFileStore(cfg.Storage.Dir, passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credential storage: %w", err)
	}
	log.Info("Using encrypted file credential storage",
		logger.Component("infrastructure"),
		logger.String("dir", cfg.Storage.Dir),
	)
	return store, func() {}, nil
}

// defaultPassphrase derives a per-machine passphrase when none is
// configured. Host-bound, not secret: it keeps credentials unreadable
// when copied off the machine, nothing more.
func defaultPassphrase() string {
	host, err := os.Hostname()
	if err != nil {
		host = "tierlist"
	}
	return "tierlist:" + host
}
