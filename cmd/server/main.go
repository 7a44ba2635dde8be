package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-settlement/internal/config"
	"github.com/iliyamo/cinema-booking-settlement/internal/database"
	"github.com/iliyamo/cinema-booking-settlement/internal/handler"
	"github.com/iliyamo/cinema-booking-settlement/internal/queue"
	"github.com/iliyamo/cinema-booking-settlement/internal/repository"
	"github.com/iliyamo/cinema-booking-settlement/internal/router"
	"github.com/iliyamo/cinema-booking-settlement/internal/service"
)

func main() {
	// Load a local .env when present; real deployments set the environment
	// directly and this is a no-op.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	// Redis backs rate limiting, the seat-map cache and the transaction
	// dedupe fast path.  All three degrade to disabled when it is absent.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable: rate limit, response cache and txn dedupe disabled")
	}

	store := repository.NewStore(db)

	minter := service.NewMinter(store,
		service.BankDetails{BankCode: cfg.BankCode, Account: cfg.BankAccount},
		cfg.MintMaxAttempts, cfg.MintSuffixLen, cfg.HoldTTL)
	matcher := service.NewMatcher(store.Orders, service.MatchPolicy{
		ShortfallPct:  cfg.MatchShortfallPct,
		RecencyWindow: cfg.MatchRecencyWindow,
	})
	settler := service.NewSettlementProcessor(store,
		service.NewRedisTxnDeduper(rdb, cfg.TxnDedupeTTL),
		queue.NewPublisher())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background expiry sweep: abandoned PENDING orders give their seats
	// back after the hold TTL.
	sweeper := service.NewSweeper(store, cfg.HoldTTL, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// Settlement event consumer; it reconnects on its own, so a failure
	// here only means a delayed start.
	go func() {
		if err := queue.StartSettlementConsumer(); err != nil {
			log.Printf("settlement consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e, rdb, cfg.JWTSecret,
		handler.NewOrderHandler(minter, matcher, settler, store, store.Txns, cfg.MatchRecencyWindow),
		handler.NewWebhookHandler(matcher, settler, store.Txns, cfg.WebhookMaxBody),
		handler.NewStaffHandler(store, settler),
		handler.NewSeatMapHandler(store.Seats))

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
