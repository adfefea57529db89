package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/book"
	"github.com/clearbook/settlement-engine/internal/exchange"
	"github.com/clearbook/settlement-engine/internal/fees"
	"github.com/clearbook/settlement-engine/internal/ledger"
	"github.com/clearbook/settlement-engine/internal/metrics"
	"github.com/clearbook/settlement-engine/internal/store"
	"github.com/clearbook/settlement-engine/internal/token"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Fee schedule (fixed at initialization) ---
	feeAccount := os.Getenv("FEE_ACCOUNT")
	if feeAccount == "" {
		feeAccount = "fee-account"
	}
	feePercent := decimal.NewFromInt(10)
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		p, err := decimal.NewFromString(v)
		if err != nil {
			slog.Error("invalid FEE_PERCENT", "err", err)
			os.Exit(1)
		}
		feePercent = p
	}
	schedule, err := fees.NewSchedule(feeAccount, feePercent)
	if err != nil {
		slog.Error("invalid fee configuration", "err", err)
		os.Exit(1)
	}

	// --- External token capability ---
	// The in-memory bank stands in for on-platform token contracts. A
	// deployment against real contracts provides its own Transferer.
	custody := os.Getenv("CUSTODY_ACCOUNT")
	if custody == "" {
		custody = "settlement-engine"
	}
	bank := token.NewMemoryBank(custody)

	// --- Core components ---
	ldg := ledger.New(st, bank, nil)
	bk := book.New(st)

	// --- WebSocket hub ---
	wsHub := exchange.NewWSHub()
	go wsHub.Run()

	// --- Settlement service ---
	svc := exchange.NewService(ldg, bk, schedule, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// No implicit value-receive path: anything outside the explicit
	// deposit/withdraw/order surface is rejected.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such operation"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"settlement-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time event broadcasts.
		r.Get("/ws", wsHub.HandleWS)

		// Custodial ledger.
		r.Post("/deposits/native", svc.DepositNative)
		r.Post("/withdrawals/native", svc.WithdrawNative)
		r.Post("/deposits/tokens", svc.DepositToken)
		r.Post("/withdrawals/tokens", svc.WithdrawToken)
		r.Get("/balances/{user}", svc.ListBalances)
		r.Get("/balances/{user}/{asset}", svc.GetBalance)

		// Order book.
		r.Post("/orders", svc.MakeOrder)
		r.Get("/orders", svc.ListOrders)
		r.Get("/orders/{orderID}", svc.GetOrder)
		r.Post("/orders/{orderID}/cancel", svc.CancelOrder)

		// Audit and configuration.
		r.Get("/events", svc.ListEvents)
		r.Get("/fees", svc.GetFees)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("settlement-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down settlement-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("settlement-engine stopped")
}
