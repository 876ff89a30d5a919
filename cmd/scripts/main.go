// Command scripts runs one-off operator maintenance tasks against the
// users collection.
//
//	scripts optin-all [-off]
//	scripts grant -chat 123 -plan pro -days 30
//	scripts drop -chat 123
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	mongorepo "github.com/ArowuTest/tutorbot-backend/internal/repositories/mongodb"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"github.com/ArowuTest/tutorbot-backend/pkg/mongodb"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zl, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"}, "tutorbot-scripts")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout())
	if err != nil {
		zl.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	db := mongoClient.Database(cfg.MongoDB.Database)
	userRepo := mongorepo.NewUserRepository(db)
	clk := clock.System{}
	users := services.NewUserService(userRepo, clk, zl)
	quota := services.NewQuotaService(userRepo, cfg.Limits, cfg.Subscription, clk)
	subs := services.NewSubscriptionService(userRepo, users, quota, nil, clk, zl)

	if err := runCommand(ctx, os.Args[1], os.Args[2:], users, subs); err != nil {
		zl.Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func runCommand(ctx context.Context, name string, args []string, users *services.UserService, subs *services.SubscriptionService) error {
	switch name {
	case "optin-all":
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		off := fs.Bool("off", false, "opt every user out instead of in")
		_ = fs.Parse(args)
		n, err := users.SetOptInAll(ctx, !*off)
		if err != nil {
			return err
		}
		fmt.Printf("updated %d users\n", n)

	case "grant":
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		chatID := fs.Int64("chat", 0, "chat id")
		plan := fs.String("plan", string(models.PlanPro), "free, lite or pro")
		days := fs.Int("days", 30, "subscription length in days")
		_ = fs.Parse(args)
		if *chatID == 0 {
			return fmt.Errorf("grant: -chat is required")
		}
		expiresAt, err := subs.SetSubscription(ctx, *chatID, models.Plan(*plan), *days)
		if err != nil {
			return err
		}
		fmt.Printf("chat %d: %s until %s\n", *chatID, *plan, expiresAt.Format(services.ExpiryLayout))

	case "drop":
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		chatID := fs.Int64("chat", 0, "chat id")
		_ = fs.Parse(args)
		if *chatID == 0 {
			return fmt.Errorf("drop: -chat is required")
		}
		if err := users.DropChat(ctx, *chatID); err != nil {
			return err
		}
		fmt.Printf("chat %d dropped\n", *chatID)

	default:
		usage()
		return fmt.Errorf("unknown command %q", name)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: scripts <optin-all [-off] | grant -chat ID -plan PLAN -days N | drop -chat ID>")
}
