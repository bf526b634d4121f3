package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"meal-planner/internal/api"
	"meal-planner/internal/app"
	"meal-planner/internal/config"
	"meal-planner/internal/shopping"
	"meal-planner/internal/telegram"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	if !knownCommands[command] {
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	logger := newLogger(command)
	defer logger.Sync()

	if err := godotenv.Load(".env"); err != nil {
		logger.Debug("no .env file found, relying on environment", zap.Error(err))
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	runErr := run(ctx, application, cfg, logger, command, args)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Close(closeCtx); err != nil {
		logger.Error("failed to close application", zap.Error(err))
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

var knownCommands = map[string]bool{
	"serve": true, "bot": true, "recipes": true, "plan": true, "list": true,
	"add": true, "remove": true, "servings": true, "option": true,
}

func run(ctx context.Context, a *app.App, cfg *config.Config, logger *zap.Logger, command string, args []string) error {
	switch command {
	case "serve":
		return serve(ctx, cfg, logger, api.NewRouter(a.Catalog, a.Session, a.Verifier, a.Health, logger), nil)
	case "bot":
		if err := cfg.ValidateBot(); err != nil {
			return err
		}
		bot, err := telegram.NewBot(cfg, a.Catalog, a.Session, a.Health, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		return serve(ctx, cfg, logger, api.NewRouter(a.Catalog, a.Session, a.Verifier, a.Health, logger), bot.WebhookHandler())
	}

	if err := a.SignInFromConfig(ctx); err != nil {
		return err
	}

	switch command {
	case "plan":
		printPlan(a)
	case "list":
		printShoppingList(a.Session.Ledger())
	case "recipes":
		for _, rec := range a.Catalog.Search(strings.Join(args, " ")) {
			fmt.Printf("%-24s %s\n", rec.ID, rec.Title)
		}
	case "add":
		if len(args) != 1 {
			return fmt.Errorf("usage: meal-planner add <recipe id>")
		}
		if !a.Session.Add(args[0]) {
			return fmt.Errorf("unknown recipe %q", args[0])
		}
		printPlan(a)
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: meal-planner remove <recipe id>")
		}
		if !a.Session.Remove(args[0]) {
			return fmt.Errorf("recipe %q is not planned", args[0])
		}
		printPlan(a)
	case "servings":
		if len(args) != 2 {
			return fmt.Errorf("usage: meal-planner servings <recipe id> <count>")
		}
		if !a.Session.SetServings(args[0], args[1]) {
			return fmt.Errorf("recipe %q is not planned", args[0])
		}
		printPlan(a)
	case "option":
		if len(args) != 3 || (args[2] != "on" && args[2] != "off") {
			return fmt.Errorf("usage: meal-planner option <recipe id> <group> on|off")
		}
		if !a.Session.ToggleOptionalGroup(args[0], args[1], args[2] == "on") {
			return fmt.Errorf("recipe %q is not planned", args[0])
		}
		printPlan(a)
	}
	return nil
}

// serve runs the HTTP API until ctx is cancelled. The Telegram webhook is
// mounted on /webhook when given.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, appRouter, webhook http.Handler) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if webhook != nil {
		r.Post("/webhook", webhook.ServeHTTP)
	}
	r.Mount("/", appRouter)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func printPlan(a *app.App) {
	entries := a.Session.View()
	if len(entries) == 0 {
		fmt.Println("Your plan is empty.")
		return
	}
	fmt.Println("=== MEAL PLAN ===")
	for _, e := range entries {
		fmt.Printf("%-24s %s servings\n", e.Title, shopping.FormatQuantity(e.Servings))
		for _, opt := range e.Options {
			state := "off"
			if opt.Enabled {
				state = "on"
			}
			fmt.Printf("    option %s: %s\n", opt.Label, state)
		}
	}
}

func printShoppingList(ledger shopping.Ledger) {
	if len(ledger) == 0 {
		fmt.Println("Your shopping list is empty.")
		return
	}
	fmt.Println("=== SHOPPING LIST ===")
	for _, line := range ledger.Strings() {
		fmt.Printf("- %s\n", line)
	}
}

// newLogger keeps one-shot commands quiet unless something goes wrong.
func newLogger(command string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if command != "serve" && command != "bot" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func printUsage() {
	fmt.Println("Usage: meal-planner <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve                         Serve the HTTP API")
	fmt.Println("  bot                           Serve the HTTP API and the Telegram webhook")
	fmt.Println("  recipes [query]               Search the recipe catalog")
	fmt.Println("  plan                          Show the current plan")
	fmt.Println("  list                          Show the shopping list")
	fmt.Println("  add <id>                      Plan a recipe")
	fmt.Println("  remove <id>                   Drop a recipe from the plan")
	fmt.Println("  servings <id> <count>         Change the servings of a planned recipe")
	fmt.Println("  option <id> <group> on|off    Toggle an optional ingredient group")
}
