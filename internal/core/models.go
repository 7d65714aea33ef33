package core

import (
	"time"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type ApiKey struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	KeyPrefix   string     `json:"key_prefix"`
	KeyHash     string     `json:"-"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SSL modes for a stored credential. "auto" applies the managed-host
// heuristic at resolve time; the other two are explicit user overrides.
const (
	SSLModeAuto    = "auto"
	SSLModeRequire = "require"
	SSLModeDisable = "disable"
)

// DBCredential is one registration of a user's external database.
// Rows are never hard-deleted: an update deactivates the previous row
// and inserts a new one, so the newest active row per user wins.
type DBCredential struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	Host             string    `json:"host"`
	Port             int       `json:"port"`
	DBName           string    `json:"database"`
	Username         string    `json:"username"`
	PasswordEnc      string    `json:"-"`
	SSLMode          string    `json:"ssl_mode"`
	ConnectTimeoutMs int       `json:"connect_timeout_ms"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ConnectionEvent is an audit record for credential changes and
// test-connection attempts.
type ConnectionEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
}

// TestResult is the explicit test-connection contract. This is the only
// surface that reports connection failures in detail; background facade
// calls degrade to empty results instead.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ColumnMetadata describes one column of an external table. Returned in
// catalog (ordinal) order because downstream form dropdowns assume
// declaration order.
type ColumnMetadata struct {
	AttributeName   string `json:"attributeName"`
	DataType        string `json:"dataType"`
	Length          int64  `json:"length,omitempty"`
	Precision       int64  `json:"precision,omitempty"`
	Scale           int64  `json:"scale,omitempty"`
	IsNotNull       bool   `json:"isNotNull"`
	IsPrimaryKey    bool   `json:"isPrimaryKey"`
	IsForeignKey    bool   `json:"isForeignKey"`
	ForeignKeyTable string `json:"foreignKeyTable,omitempty"`
}

// External rows below live in the user's own database (snake_case
// columns); the facade maps them to these camelCase shapes.

type PipelineConfig struct {
	ID           int64      `json:"id"`
	PipelineName string     `json:"pipelineName"`
	SourceSystem string     `json:"sourceSystem"`
	TargetSystem string     `json:"targetSystem"`
	ScheduleCron string     `json:"scheduleCron"`
	Layer        string     `json:"layer"`
	Owner        string     `json:"owner"`
	Description  string     `json:"description"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    *time.Time `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

type DictionaryEntry struct {
	ID           int64      `json:"id"`
	SchemaName   string     `json:"schemaName"`
	TableName    string     `json:"tableName"`
	ColumnName   string     `json:"columnName"`
	DataType     string     `json:"dataType"`
	BusinessName string     `json:"businessName"`
	Description  string     `json:"description"`
	Layer        string     `json:"layer"`
	IsPII        bool       `json:"isPii"`
	CreatedAt    *time.Time `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

type ReconRule struct {
	ID           int64      `json:"id"`
	RuleName     string     `json:"ruleName"`
	SourceTable  string     `json:"sourceTable"`
	TargetTable  string     `json:"targetTable"`
	SourceColumn string     `json:"sourceColumn"`
	TargetColumn string     `json:"targetColumn"`
	Tolerance    float64    `json:"tolerance"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    *time.Time `json:"createdAt"`
}

type QualityRule struct {
	ID           int64      `json:"id"`
	RuleName     string     `json:"ruleName"`
	TargetTable  string     `json:"targetTable"`
	TargetColumn string     `json:"targetColumn"`
	CheckType    string     `json:"checkType"`
	Threshold    float64    `json:"threshold"`
	Severity     string     `json:"severity"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    *time.Time `json:"createdAt"`
}

type PipelineRun struct {
	ID               int64      `json:"id"`
	PipelineName     string     `json:"pipelineName"`
	RunID            string     `json:"runId"`
	Status           string     `json:"status"`
	RecordsProcessed int64      `json:"recordsProcessed"`
	StartedAt        *time.Time `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt"`
}

// DashboardMetrics aggregates independently-optional sources. A source
// that is missing or unreachable contributes zero; the total is always
// the sum of the sources that answered.
type DashboardMetrics struct {
	Pipelines       int64 `json:"pipelines"`
	PipelineRuns    int64 `json:"pipelineRuns"`
	QualityResults  int64 `json:"qualityResults"`
	ReconResults    int64 `json:"reconResults"`
	TotalActivities int64 `json:"totalActivities"`
}

type ChatSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Title     string     `json:"title"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type ChatMessage struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	SQLText   string     `json:"sql,omitempty"`
	ChartType string     `json:"chartType,omitempty"`
	CreatedAt *time.Time `json:"createdAt"`
}

type SavedChart struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	ChartType  string     `json:"chartType"`
	SQLText    string     `json:"sql"`
	ConfigJSON string     `json:"config"`
	CreatedAt  *time.Time `json:"createdAt"`
}
