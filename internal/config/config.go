package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	PipedashKey     string
	AdminDBPath     string
	LogDir          string
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
	ProbeCacheTTL   time.Duration
	SessionKey      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func Load() (*Config, error) {
	// Try loading .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	key := os.Getenv("PIPEDASH_KEY")
	if len(key) < 32 {
		fmt.Println("PIPEDASH_KEY not found or too short. Generating a new secure key...")
		newKey, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		if err := saveKeyToEnv(newKey); err != nil {
			fmt.Printf("Warning: Failed to save generated key to .env: %v\n", err)
		} else {
			fmt.Println("New PIPEDASH_KEY saved to .env file.")
		}
		key = newKey
	}

	sessionKey := os.Getenv("PIPEDASH_SESSION_KEY")
	if sessionKey == "" {
		// Session cookies may rotate across restarts without harm
		sessionKey, _ = generateRandomKey(32)
	}

	return &Config{
		Port:            envInt("PORT", 8080),
		PipedashKey:     key,
		AdminDBPath:     envStr("ADMIN_DB_PATH", "pipedash.db"),
		LogDir:          envStr("LOG_DIR", "logs"),
		ConnectTimeout:  envMillis("CONNECT_TIMEOUT_MS", 10_000),
		QueryTimeout:    envMillis("QUERY_TIMEOUT_MS", 30_000),
		ProbeCacheTTL:   envMillis("PROBE_CACHE_TTL_MS", 30_000),
		SessionKey:      sessionKey,
		MaxOpenConns:    envInt("EXT_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    envInt("EXT_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envMillis("EXT_CONN_MAX_LIFETIME_MS", int(5*time.Minute/time.Millisecond)),
	}, nil
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envMillis(name string, defMs int) time.Duration {
	return time.Duration(envInt(name, defMs)) * time.Millisecond
}

func generateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func saveKeyToEnv(key string) error {
	filename := ".env"
	content, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return os.WriteFile(filename, []byte(fmt.Sprintf("PIPEDASH_KEY=%s\nPORT=8080\n", key)), 0644)
	} else if err != nil {
		return err
	}

	lines := strings.Split(string(content), "\n")
	found := false
	newLines := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "PIPEDASH_KEY=") {
			newLines = append(newLines, fmt.Sprintf("PIPEDASH_KEY=%s", key))
			found = true
		} else if trimmed != "" {
			newLines = append(newLines, trimmed)
		}
	}
	if !found {
		newLines = append(newLines, fmt.Sprintf("PIPEDASH_KEY=%s", key))
	}
	return os.WriteFile(filename, []byte(strings.Join(newLines, "\n")+"\n"), 0644)
}
