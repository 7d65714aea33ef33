// check_conn resolves a user's external database credential from the
// admin store and runs a live connection test. Ops tool for diagnosing
// "my dashboard is empty" reports without touching the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pipedash/internal/config"
	"pipedash/internal/data"
	"pipedash/internal/extdb"
	"pipedash/internal/service"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	userID := flag.String("u", "", "User ID whose connection to test")
	timeout := flag.Duration("timeout", 15*time.Second, "Overall test timeout")
	flag.Parse()

	if *userID == "" {
		fmt.Println("Usage: check_conn -u <user-id> [-timeout 15s]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := data.InitDB(cfg.AdminDBPath)
	if err != nil {
		fmt.Printf("Failed to open admin database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cryptoSvc, err := service.NewEncryptionService(cfg.PipedashKey)
	if err != nil {
		fmt.Printf("Failed to init crypto service: %v\n", err)
		os.Exit(1)
	}

	credRepo := data.NewCredentialRepo(db)
	resolver := extdb.NewResolver(credRepo, cryptoSvc, cfg.ConnectTimeout)
	broker := extdb.NewBroker(resolver, extdb.PoolOptions{MaxOpenConns: 1, MaxIdleConns: 1})
	defer broker.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result := broker.TestConnection(ctx, *userID)
	fmt.Printf("success: %t\nmessage: %s\n", result.Success, result.Message)
	if result.Details != "" {
		fmt.Printf("details: %s\n", result.Details)
	}
	if !result.Success {
		os.Exit(1)
	}
}
