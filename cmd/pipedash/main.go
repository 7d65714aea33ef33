package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"pipedash/internal/api"
	"pipedash/internal/config"
	"pipedash/internal/data"
	"pipedash/internal/extdb"
	"pipedash/internal/facade"
	"pipedash/internal/logger"
	"pipedash/internal/observe"
	"pipedash/internal/service"

	// Drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	// Check for CLI subcommands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "reset-password":
			handleResetPassword(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		default:
			fmt.Printf("Unknown command: %s\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}

	// No subcommand — start server
	startServer()
}

func printHelp() {
	fmt.Println("Pipedash - Data Pipeline Ops Dashboard")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pipedash                           Start the server")
	fmt.Println("  pipedash reset-password -u <user>  Reset user password (interactive)")
	fmt.Println("  pipedash help                      Show this help")
}

func handleResetPassword(args []string) {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	username := fs.String("u", "", "Username to reset")
	fs.Parse(args)

	if *username == "" {
		fmt.Println("Usage: pipedash reset-password -u <username>")
		os.Exit(1)
	}

	// Interactive password input (hidden)
	fmt.Print("New password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // newline after hidden input
	if err != nil {
		fmt.Printf("Failed to read password: %v\n", err)
		os.Exit(1)
	}
	password := string(passBytes)

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Printf("Failed to read password: %v\n", err)
		os.Exit(1)
	}

	if password != string(confirmBytes) {
		fmt.Println("Passwords do not match.")
		os.Exit(1)
	}

	if password == "" {
		fmt.Println("Password cannot be empty.")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := data.InitDB(cfg.AdminDBPath)
	if err != nil {
		fmt.Printf("Failed to init database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	userRepo := data.NewUserRepo(db)
	apiKeyRepo := data.NewApiKeyRepo(db)
	authSvc := service.NewAuthService(userRepo, apiKeyRepo)

	if err := authSvc.ResetPassword(*username, password); err != nil {
		fmt.Printf("Failed to reset password: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Password for user '%s' has been reset successfully.\n", *username)
}

func startServer() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\nCheck .env file or PIPEDASH_KEY environment variable.\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	if err := logger.Init(cfg.LogDir); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info.Println("Starting Pipedash...")

	observe.Register()

	// 3. Initialize admin DB
	db, err := data.InitDB(cfg.AdminDBPath)
	if err != nil {
		logger.Error.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	// 4. Initialize Repos
	userRepo := data.NewUserRepo(db)
	apiKeyRepo := data.NewApiKeyRepo(db)
	credRepo := data.NewCredentialRepo(db)
	auditRepo := data.NewAuditRepo(db)

	// 5. Initialize Services
	cryptoSvc, err := service.NewEncryptionService(cfg.PipedashKey)
	if err != nil {
		logger.Error.Fatalf("Failed to init crypto service: %v", err)
	}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo)

	// 6. External DB plumbing
	resolver := extdb.NewResolver(credRepo, cryptoSvc, cfg.ConnectTimeout)
	broker := extdb.NewBroker(resolver, extdb.PoolOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	defer broker.Shutdown()
	probe := extdb.NewProbe(cfg.ProbeCacheTTL)
	fcd := facade.New(broker, probe, cfg.QueryTimeout)

	// 7. Initialize Handlers
	authHandler := api.NewAuthHandler(authSvc, cfg.SessionKey)
	settingsHandler := api.NewSettingsHandler(credRepo, auditRepo, cryptoSvc, broker, probe)
	handler := api.NewHandler(fcd, authSvc, authHandler, settingsHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Routes(),
	}

	// Graceful shutdown channel
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info.Printf("Server listening on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error.Fatalf("Server startup failed: %v", err)
		}
	}()

	<-stop
	logger.Info.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error.Printf("Server shutdown error: %v", err)
	}
	broker.Shutdown()
	logger.Info.Println("Server stopped")
}
