package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"pipedash/internal/core"
	"pipedash/internal/extdb"
	"pipedash/internal/logger"
	"pipedash/internal/service"
)

// SettingsHandler manages a user's external database registration.
type SettingsHandler struct {
	credRepo  core.CredentialRepository
	auditRepo core.AuditRepository
	cryptoSvc *service.EncryptionService
	broker    *extdb.Broker
	probe     *extdb.Probe
}

func NewSettingsHandler(credRepo core.CredentialRepository, auditRepo core.AuditRepository, cryptoSvc *service.EncryptionService, broker *extdb.Broker, probe *extdb.Probe) *SettingsHandler {
	return &SettingsHandler{
		credRepo:  credRepo,
		auditRepo: auditRepo,
		cryptoSvc: cryptoSvc,
		broker:    broker,
		probe:     probe,
	}
}

type credentialRequest struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	DBName           string `json:"database"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	SSLMode          string `json:"sslMode"`
	ConnectTimeoutMs int    `json:"connectTimeoutMs"`
}

func (req *credentialRequest) validate() error {
	if req.Host == "" || req.DBName == "" || req.Username == "" {
		return fmt.Errorf("host, database and username are required")
	}
	if req.Port != 5432 && req.Port != 3306 {
		return fmt.Errorf("unsupported port %d: use 5432 (PostgreSQL) or 3306 (MySQL)", req.Port)
	}
	switch req.SSLMode {
	case "", core.SSLModeAuto, core.SSLModeRequire, core.SSLModeDisable:
	default:
		return fmt.Errorf("sslMode must be auto, require or disable")
	}
	return nil
}

func (req *credentialRequest) toCredential(userID string) *core.DBCredential {
	return &core.DBCredential{
		UserID:           userID,
		Host:             req.Host,
		Port:             req.Port,
		DBName:           req.DBName,
		Username:         req.Username,
		SSLMode:          req.SSLMode,
		ConnectTimeoutMs: req.ConnectTimeoutMs,
	}
}

// SaveCredential registers or replaces the caller's external database.
// The previous registration stays in history, deactivated; any open
// pool is dropped so the next query hits the new database.
func (h *SettingsHandler) SaveCredential(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "password is required")
		return
	}

	enc, err := h.cryptoSvc.Encrypt(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store credential")
		return
	}
	cred := req.toCredential(userID)
	cred.PasswordEnc = enc

	if err := h.credRepo.Save(cred); err != nil {
		logger.Error.Printf("saving credential for user %s: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "Failed to store credential")
		return
	}

	h.broker.Invalidate(userID)
	h.probe.Invalidate(userID)
	h.audit(userID, "credential_saved", fmt.Sprintf("%s:%d/%s", cred.Host, cred.Port, cred.DBName))

	respondJSON(w, http.StatusOK, cred)
}

// GetCredential returns the caller's active registration, without the
// password.
func (h *SettingsHandler) GetCredential(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	cred, err := h.credRepo.GetActive(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cred == nil {
		respondJSON(w, http.StatusOK, map[string]bool{"configured": false})
		return
	}
	respondJSON(w, http.StatusOK, cred)
}

// DeleteCredential deactivates the caller's registration and closes
// any open pool.
func (h *SettingsHandler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	if err := h.credRepo.Deactivate(userID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.broker.Invalidate(userID)
	h.probe.Invalidate(userID)
	h.audit(userID, "credential_deactivated", "")

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TestCredential runs a live connection test. With a body it tests the
// submitted form values before they are saved; without one it tests the
// stored registration. This is the one surface that reports connection
// failures in detail.
func (h *SettingsHandler) TestCredential(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	var req credentialRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	var result core.TestResult
	if req.Host != "" {
		if err := req.validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		result = h.broker.TestCandidate(r.Context(), req.toCredential(userID), req.Password)
	} else {
		result = h.broker.TestConnection(r.Context(), userID)
	}

	h.audit(userID, "connection_test", fmt.Sprintf("success=%t %s", result.Success, result.Message))
	respondJSON(w, http.StatusOK, result)
}

// CredentialHistory returns the caller's past registrations, newest
// first, without passwords.
func (h *SettingsHandler) CredentialHistory(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	hist, err := h.credRepo.History(userID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hist == nil {
		hist = []core.DBCredential{}
	}
	respondJSON(w, http.StatusOK, hist)
}

// AuditLog returns recent connection events for operators.
func (h *SettingsHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := h.auditRepo.GetRecent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []core.ConnectionEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *SettingsHandler) audit(userID, event, detail string) {
	if err := h.auditRepo.Record(&core.ConnectionEvent{UserID: userID, Event: event, Detail: detail}); err != nil {
		logger.Error.Printf("audit %s for user %s: %v", event, userID, err)
	}
}
