/**
 * @description
 * This is the main entry point for the wallet-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/ratesclient: Client for the FX rates provider.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/jasho/wallet-service/internal/api"
	"github.com/jasho/wallet-service/internal/app"
	"github.com/jasho/wallet-service/internal/config"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	jrabbit "github.com/jasho/wallet-service/pkg/rabbitmq"
	"github.com/jasho/wallet-service/pkg/ratesclient"
)

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting wallet-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events.
	var producer jrabbit.Publisher
	eventProducer, err := jrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &jrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the FX rates client. Missing config disables quoted
	// conversions; client-supplied rates still work.
	var rates app.RateSource
	if strings.TrimSpace(cfg.RatesAPIBaseURL) != "" {
		rates = ratesclient.NewClient(cfg.RatesAPIBaseURL, cfg.RatesAPIKey)
	} else {
		log.Println("level=warn component=bootstrap msg=\"rates api not configured; conversions require a client-supplied rate\" env=RATES_API_BASE_URL")
	}

	// Connect Redis for distributed rate limiting.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; endpoint rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; endpoint rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; endpoint rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Assemble the application components.
	ledger := app.NewLedger(repository, cfg.CurrencyList())
	gate := app.NewSecurityGate(
		repository,
		cfg.PINMaxAttempts,
		time.Duration(cfg.PINLockoutSeconds)*time.Second,
		defaultDailyLimits(cfg),
	)
	coordinator := app.NewCoordinator(ledger, rates)
	creditEngine := app.NewCreditEngine(repository, producer, cfg.MinEligibleScore)

	var limiter *app.RedisRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}
	rateLimits := map[string]app.RateLimitConfig{
		api.RateLimitScopeVerifyPIN: {Limit: cfg.VerifyPINRateLimitPerMinute, Window: time.Minute},
		api.RateLimitScopeTransfer:  {Limit: cfg.TransferRateLimitPerMinute, Window: time.Minute},
	}

	walletService := app.NewService(repository, ledger, gate, coordinator, creditEngine, producer, limiter, rateLimits)

	// Initialize the API handlers.
	walletHandlers := api.NewWalletHandlers(walletService)

	// Set up the HTTP router.
	router := chi.NewRouter()
	router.Mount("/", api.WalletRoutes(walletHandlers, cfg.AuthJWKSURL))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	// Wire up the loan repayment consumer; repayment outcomes feed the
	// credit score.
	loanConsumer := app.NewLoanRepaymentConsumer(creditEngine)
	rabbitConsumer, err := jrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; loan repayment ingestion disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		loanBindings := map[string]func([]byte) bool{
			"loan.repayment.*": loanConsumer.HandleMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings("jasho.events", cfg.LoanEventQueue, loanBindings); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"loan consumer start failed\" err=%v", err)
		}
	}

	// Background score refresh keeps stale profiles current.
	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	defer cancelRefresh()
	refresher := app.NewScoreRefresher(
		creditEngine,
		time.Duration(cfg.ScoreRefreshIntervalMinutes)*time.Minute,
		time.Duration(cfg.ScoreMaxAgeHours)*time.Hour,
	)
	go refresher.Run(refreshCtx)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	cancelRefresh()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// defaultDailyLimits builds the fallback caps applied to users without
// explicit rows in daily_limits. Only KES carries defaults; other currencies
// are uncapped unless configured per user.
func defaultDailyLimits(cfg config.Config) map[string]domain.DailyLimit {
	parse := func(raw string) decimal.Decimal {
		v, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || v.IsNegative() {
			return decimal.Zero
		}
		return v
	}
	return map[string]domain.DailyLimit{
		"KES": {
			Currency:   "KES",
			Deposit:    parse(cfg.DailyDepositLimitKES),
			Withdrawal: parse(cfg.DailyWithdrawalLimitKES),
			Transfer:   parse(cfg.DailyTransferLimitKES),
		},
	}
}
