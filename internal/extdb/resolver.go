package extdb

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"pipedash/internal/core"
	"pipedash/internal/service"
)

// managedHostFragments flags hosts that are almost certainly managed
// cloud databases. Those providers reject plain connections, so SSL is
// forced on for them when the credential's ssl_mode is "auto". This is
// deliberately a cheap substring check, not a negotiated handshake; the
// ssl_mode override exists for the cases it gets wrong.
var managedHostFragments = []string{
	"amazonaws.com",
	"rds.",
	"azure.com",
	"database.windows.net",
	"digitalocean.com",
	"aivencloud.com",
	"neon.tech",
	"supabase.co",
	"supabase.com",
	"render.com",
	"cockroachlabs.cloud",
	"gcp.",
	"googleusercontent.com",
	"herokuapp.com",
	"timescale.com",
}

// ResolvedConfig is everything needed to open a pool for one credential
// set. It is derived, never stored.
type ResolvedConfig struct {
	CredentialID   int64
	UserID         string
	Engine         Engine
	Host           string
	Port           int
	DBName         string
	SSLRequired    bool
	ConnectTimeout time.Duration
	DSN            string

	updatedAt time.Time
}

// Fingerprint changes whenever the underlying credential row changes,
// which is what drives close-then-replace in the broker.
func (c *ResolvedConfig) Fingerprint() string {
	return fmt.Sprintf("%d:%d", c.CredentialID, c.updatedAt.UnixNano())
}

// Resolver turns a user identity into connection parameters for that
// user's external database.
type Resolver struct {
	creds          core.CredentialRepository
	crypto         *service.EncryptionService
	defaultTimeout time.Duration
}

func NewResolver(creds core.CredentialRepository, crypto *service.EncryptionService, defaultTimeout time.Duration) *Resolver {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Resolver{creds: creds, crypto: crypto, defaultTimeout: defaultTimeout}
}

// Resolve loads the user's newest active credential and derives the
// connection parameters. A user without a credential resolves to
// (nil, nil): that is the normal state for anyone who has not registered
// an external database, never an error.
func (r *Resolver) Resolve(userID string) (*ResolvedConfig, error) {
	cred, err := r.creds.GetActive(userID)
	if err != nil {
		return nil, fmt.Errorf("load credential for user %s: %w", userID, err)
	}
	if cred == nil {
		return nil, nil
	}

	password, err := r.crypto.Decrypt(cred.PasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential for user %s: %w", userID, err)
	}
	return r.FromCredential(cred, password)
}

// FromCredential derives connection parameters from a credential and its
// plaintext password. Used by Resolve and by the test-connection path
// for not-yet-saved form input.
func (r *Resolver) FromCredential(cred *core.DBCredential, password string) (*ResolvedConfig, error) {
	engine, err := engineForPort(cred.Port)
	if err != nil {
		return nil, err
	}

	timeout := r.defaultTimeout
	if cred.ConnectTimeoutMs > 0 {
		timeout = time.Duration(cred.ConnectTimeoutMs) * time.Millisecond
	}

	ssl := sslRequired(cred)
	cfg := &ResolvedConfig{
		CredentialID:   cred.ID,
		UserID:         cred.UserID,
		Engine:         engine,
		Host:           cred.Host,
		Port:           cred.Port,
		DBName:         cred.DBName,
		SSLRequired:    ssl,
		ConnectTimeout: timeout,
		updatedAt:      cred.UpdatedAt,
	}

	switch engine {
	case EnginePostgres:
		cfg.DSN = postgresDSN(cred, password, ssl, timeout)
	case EngineMySQL:
		cfg.DSN = mysqlDSN(cred, password, ssl, timeout)
	}
	return cfg, nil
}

func engineForPort(port int) (Engine, error) {
	switch port {
	case 5432:
		return EnginePostgres, nil
	case 3306:
		return EngineMySQL, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnsupportedPort, port)
	}
}

func sslRequired(cred *core.DBCredential) bool {
	switch cred.SSLMode {
	case core.SSLModeRequire:
		return true
	case core.SSLModeDisable:
		return false
	}
	host := strings.ToLower(cred.Host)
	for _, fragment := range managedHostFragments {
		if strings.Contains(host, fragment) {
			return true
		}
	}
	return false
}

// postgresDSN builds the lib/pq DSN. Managed hosts get a URL with
// sslmode=require (certificate verification stays relaxed, matching
// what those providers hand out); everything else gets discrete
// keyword/value parameters with SSL off, because on-prem and docker
// postgres installs commonly reject SSL outright.
func postgresDSN(cred *core.DBCredential, password string, ssl bool, timeout time.Duration) string {
	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	if ssl {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cred.Username, password),
			Host:     fmt.Sprintf("%s:%d", cred.Host, cred.Port),
			Path:     "/" + cred.DBName,
			RawQuery: fmt.Sprintf("sslmode=require&connect_timeout=%d", seconds),
		}
		return u.String()
	}

	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable connect_timeout=%d",
		pqValue(cred.Host), cred.Port, pqValue(cred.DBName), pqValue(cred.Username), pqValue(password), seconds)
}

// pqValue quotes a keyword/value connection-string value for lib/pq.
func pqValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func mysqlDSN(cred *core.DBCredential, password string, ssl bool, timeout time.Duration) string {
	mc := mysql.NewConfig()
	mc.User = cred.Username
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cred.Host, cred.Port)
	mc.DBName = cred.DBName
	mc.Timeout = timeout
	mc.ParseTime = true
	if ssl {
		// skip-verify mirrors relaxed certificate checking on the
		// postgres side; managed MySQL certs are often provider-signed.
		mc.TLSConfig = "skip-verify"
	}
	return mc.FormatDSN()
}
