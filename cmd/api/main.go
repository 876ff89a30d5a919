package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/tutorbot-backend/api/routes"
	"github.com/ArowuTest/tutorbot-backend/internal/bot"
	"github.com/ArowuTest/tutorbot-backend/internal/cache"
	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/handlers"
	mongorepo "github.com/ArowuTest/tutorbot-backend/internal/repositories/mongodb"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/ArowuTest/tutorbot-backend/pkg/jwt"
	"github.com/ArowuTest/tutorbot-backend/pkg/llm"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"github.com/ArowuTest/tutorbot-backend/pkg/mongodb"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, logger.DefaultServiceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
	zl.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout())
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(dctx); err != nil {
			zl.Warn("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	db := mongoClient.Database(cfg.MongoDB.Database)
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	var cooldown services.Cooldown
	window := time.Duration(cfg.Redis.CooldownSeconds) * time.Second
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cooldown = cache.NewRedisCooldown(rdb, window)
	} else {
		zl.Info("Redis not configured, using in-process cooldown")
		cooldown = cache.NewLocalCooldown(window)
	}

	promos, err := cfg.Promo.Parse()
	if err != nil {
		return err
	}

	// Repositories
	userRepo := mongorepo.NewUserRepository(db)
	paymentRepo := mongorepo.NewPaymentRepository(db)
	historyRepo := mongorepo.NewHistoryRepository(db)
	bookmarkRepo := mongorepo.NewBookmarkRepository(db)

	// Services
	clk := clock.System{}
	userService := services.NewUserService(userRepo, clk, zl)
	quotaService := services.NewQuotaService(userRepo, cfg.Limits, cfg.Subscription, clk)
	subscriptionService := services.NewSubscriptionService(userRepo, userService, quotaService, promos, clk, zl)
	paymentService := services.NewPaymentService(paymentRepo, subscriptionService, cfg.Subscription, clk, zl)
	referralService := services.NewReferralService(userRepo, userService, subscriptionService, cfg.Referral, zl)
	conversationService := services.NewConversationService(historyRepo, bookmarkRepo, cfg.LLM.MaxTurns, clk)
	completer := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second, cfg.LLM.Mock)
	tutorService := services.NewTutorService(userService, quotaService, conversationService, completer, cooldown, zl)

	tokens := jwt.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiresIn)*time.Second)
	authService := services.NewAuthService(cfg.Admin, tokens)

	// Chat transport. Without it payment notifications and broadcasts are off.
	var (
		telegram    *bot.Bot
		notifier    services.Sender
		broadcaster handlers.Broadcaster
	)
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		commands := bot.NewCommands(bot.CommandDeps{
			Accounts:  userService,
			Status:    quotaService,
			Referrals: referralService,
			Promos:    subscriptionService,
			Checkouts: paymentService,
			Convo:     conversationService,
			Pricing:   cfg.Subscription,
			Referral:  cfg.Referral,
			Username:  cfg.Telegram.Username,
		}, zl)
		telegram, err = bot.New(cfg.Telegram.Token, commands, tutorService, zl)
		if err != nil {
			return err
		}
		notifier = telegram.Sender()
		broadcaster = services.NewBroadcastService(userService, telegram.Sender(), 8, 50*time.Millisecond, zl)
	} else {
		zl.Warn("Telegram bot disabled")
	}

	// Handlers
	router := routes.SetupRouter(cfg, routes.HandlerDependencies{
		AuthHandler:      handlers.NewAuthHandler(authService),
		UserHandler:      handlers.NewUserHandler(userService, quotaService, subscriptionService, paymentService),
		CheckoutHandler:  handlers.NewCheckoutHandler(paymentService),
		BroadcastHandler: handlers.NewBroadcastHandler(broadcaster),
		WebhookHandler: handlers.NewWebhookHandler(paymentService, referralService, userService, notifier,
			cfg.Webhook, cfg.Subscription.Days, zl),
		Tokens:   tokens,
		Database: mongoClient,
		Logger:   zl,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if telegram != nil {
		g.Go(func() error {
			telegram.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
