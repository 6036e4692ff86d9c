package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/config"
	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	"arena-quiz-service/internal/infra/postgres"
	infraredis "arena-quiz-service/internal/infra/redis"
	transport "arena-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the arena server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// services bundles everything runServer and the tick command wire up.
type services struct {
	rounds    *app.RoundService
	matches   *app.MatchService
	brackets  *app.BracketService
	messages  *app.MessageService
	scheduler *app.Scheduler
	close     func()
}

func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		closers = append(closers, func() { _ = db.Close() })
		store = postgres.NewStore(db)
	}

	var provider content.Provider = memory.NewProvider()
	bankURL := cfg.Postgres.BankURL
	if bankURL == "" {
		bankURL = cfg.Postgres.URL
	}
	if bankURL != "" {
		pool, err := pgxpool.Connect(ctx, bankURL)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, pool.Close)
		provider = postgres.NewBankProvider(pool)
	}
	if redisClient != nil {
		bankTTL := config.Duration(cfg.Bank.TTL, 10*time.Minute)
		provider = infraredis.NewBankCache(redisClient, provider, bankTTL)
	}

	var lock app.PassLock
	if redisClient != nil {
		lockTTL := config.Duration(cfg.Redis.LockTTL, time.Minute)
		lock = infraredis.NewPassLock(redisClient, "", lockTTL)
	}

	rounds := app.NewRoundService(store, provider)
	matches := app.NewMatchService(store, provider)
	brackets := app.NewBracketService(store, provider)
	messages := app.NewMessageService(store, logNotifier{}, cfg.Scheduler.Batch)

	return &services{
		rounds:    rounds,
		matches:   matches,
		brackets:  brackets,
		messages:  messages,
		scheduler: app.NewScheduler(rounds, brackets, messages, lock),
		close:     closeAll,
	}, nil
}

// logNotifier is the default Notifier: it records deliveries in the log. A
// real deployment swaps in the push-gateway client here.
type logNotifier struct{}

func (logNotifier) Notify(ctx context.Context, m *domain.Message) error {
	log.Printf("notify: %s to user %d (match %d)", m.Type, m.UserID, m.MatchID)
	return nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	handler := transport.NewHandler(svc.rounds, svc.matches, svc.brackets)
	wsHandler := transport.NewWSHandler(svc.matches)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET /ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	interval := config.Duration(cfg.Scheduler.Interval, 30*time.Second)
	go svc.scheduler.Run(schedCtx, interval)

	go func() {
		log.Printf("starting arena quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
