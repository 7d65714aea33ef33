package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pipedash/internal/core"
	"pipedash/internal/facade"
	"pipedash/internal/observe"
	"pipedash/internal/service"
)

type Handler struct {
	facade   *facade.Facade
	authSvc  *service.AuthService
	auth     *AuthHandler
	settings *SettingsHandler
	limiter  *RateLimiter
}

func NewHandler(f *facade.Facade, authSvc *service.AuthService, auth *AuthHandler, settings *SettingsHandler) *Handler {
	return &Handler{
		facade:   f,
		authSvc:  authSvc,
		auth:     auth,
		settings: settings,
		limiter:  NewRateLimiter(300, 50),
	}
}

// Routes wires the full HTTP surface.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	r.Use(h.limiter.Middleware)

	r.Get("/metrics", observe.Handler().ServeHTTP)

	r.Post("/auth/setup", h.auth.DoSetup)
	r.Post("/auth/login", h.auth.DoLogin)
	r.Post("/auth/logout", h.auth.Logout)

	// Settings surface: session login from the dashboard UI.
	r.Route("/settings", func(r chi.Router) {
		r.Use(h.auth.SessionMiddleware)
		r.Get("/database", h.settings.GetCredential)
		r.Post("/database", h.settings.SaveCredential)
		r.Delete("/database", h.settings.DeleteCredential)
		r.Post("/database/test", h.settings.TestCredential)
		r.Get("/database/history", h.settings.CredentialHistory)

		r.Get("/audit", h.settings.AuditLog)

		r.Get("/api-keys", h.auth.ListApiKeys)
		r.Post("/api-keys", h.auth.CreateApiKey)
		r.Delete("/api-keys/{id}", h.auth.RevokeApiKey)
	})

	// API surface: key-authenticated programmatic access.
	r.Route("/api", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/dashboard/metrics", h.DashboardMetrics)

		r.Post("/query", h.ExecuteQuery)
		r.Post("/query/validate", h.ValidateSQL)

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", h.ListPipelines)
			r.Post("/", h.CreatePipeline)
			r.Put("/{id}", h.UpdatePipeline)
			r.Delete("/{id}", h.DeletePipeline)
			r.Get("/runs", h.ListPipelineRuns)
		})

		r.Route("/dictionary", func(r chi.Router) {
			r.Get("/", h.ListDictionary)
			r.Post("/", h.CreateDictionaryEntry)
			r.Put("/{id}", h.UpdateDictionaryEntry)
			r.Delete("/{id}", h.DeleteDictionaryEntry)
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/", h.ListReconRules)
			r.Post("/", h.CreateReconRule)
			r.Put("/{id}", h.UpdateReconRule)
			r.Delete("/{id}", h.DeleteReconRule)
		})

		r.Route("/quality", func(r chi.Router) {
			r.Get("/", h.ListQualityRules)
			r.Post("/", h.CreateQualityRule)
			r.Put("/{id}", h.UpdateQualityRule)
			r.Delete("/{id}", h.DeleteQualityRule)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/sessions", h.ListChatSessions)
			r.Post("/sessions", h.CreateChatSession)
			r.Delete("/sessions/{id}", h.DeleteChatSession)
			r.Get("/sessions/{id}/messages", h.ListChatMessages)
			r.Post("/sessions/{id}/messages", h.AppendChatMessage)
		})

		r.Route("/charts", func(r chi.Router) {
			r.Get("/", h.ListSavedCharts)
			r.Post("/", h.SaveChart)
			r.Delete("/{id}", h.DeleteChart)
			r.Get("/{id}/data", h.RunSavedChart)
		})

		r.Route("/meta", func(r chi.Router) {
			r.Get("/schemas", h.ListSchemas)
			r.Get("/tables", h.ListTables)
			r.Get("/columns", h.ListColumns)
			r.Get("/column-metadata", h.ListColumnMetadata)
		})
	})

	return r
}

// AuthMiddleware verifies the X-API-Key header and puts the owning
// user's identity in context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKeyStr := r.Header.Get("X-API-Key")
		if apiKeyStr == "" {
			respondError(w, http.StatusUnauthorized, "Missing X-API-Key header")
			return
		}

		apiKey, err := h.authSvc.VerifyApiKey(apiKeyStr)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid X-API-Key")
			return
		}

		ctx := context.WithValue(r.Context(), core.ContextKeyApiKeyID, apiKey.ID)
		ctx = context.WithValue(ctx, core.ContextKeyUserID, strconv.FormatInt(apiKey.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userIDFrom reads the identity the auth middlewares stored.
func userIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(core.ContextKeyUserID).(string); ok {
		return v
	}
	return ""
}

// writeError maps facade failures to status codes. A missing
// registration is a precondition failure; a missing feature table is a
// conflict with the database's current schema; a database that cannot
// be reached is a dependency outage, not a server bug.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, facade.ErrNotConfigured):
		respondError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, facade.ErrMissingTable):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, facade.ErrUnreachable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, facade.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, facade.ErrQueryRejected):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) DashboardMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.facade.DashboardMetrics(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// --- Ad-hoc queries ---

func (h *Handler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL     string `json:"sql"`
		MaxRows int    `json:"maxRows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.facade.ExecuteQuery(r.Context(), userIDFrom(r), req.SQL, req.MaxRows)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) ValidateSQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL string `json:"sql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.facade.ValidateSQL(r.Context(), userIDFrom(r), req.SQL); err != nil {
		if errors.Is(err, facade.ErrQueryRejected) {
			respondJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// --- Pipelines ---

func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListPipelines(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var p core.PipelineConfig
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.facade.CreatePipeline(r.Context(), userIDFrom(r), &p); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var p core.PipelineConfig
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p.ID = id
	if err := h.facade.UpdatePipeline(r.Context(), userIDFrom(r), &p); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := h.facade.DeletePipeline(r.Context(), userIDFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListPipelineRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.facade.ListPipelineRuns(r.Context(), userIDFrom(r), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// --- Data dictionary ---

func (h *Handler) ListDictionary(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListDictionary(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateDictionaryEntry(w http.ResponseWriter, r *http.Request) {
	var e core.DictionaryEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.facade.CreateDictionaryEntry(r.Context(), userIDFrom(r), &e); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) UpdateDictionaryEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var e core.DictionaryEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e.ID = id
	if err := h.facade.UpdateDictionaryEntry(r.Context(), userIDFrom(r), &e); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) DeleteDictionaryEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := h.facade.DeleteDictionaryEntry(r.Context(), userIDFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Reconciliation rules ---

func (h *Handler) ListReconRules(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListReconRules(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateReconRule(w http.ResponseWriter, r *http.Request) {
	var rule core.ReconRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.facade.CreateReconRule(r.Context(), userIDFrom(r), &rule); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) UpdateReconRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var rule core.ReconRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.ID = id
	if err := h.facade.UpdateReconRule(r.Context(), userIDFrom(r), &rule); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) DeleteReconRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := h.facade.DeleteReconRule(r.Context(), userIDFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Quality rules ---

func (h *Handler) ListQualityRules(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListQualityRules(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateQualityRule(w http.ResponseWriter, r *http.Request) {
	var rule core.QualityRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.facade.CreateQualityRule(r.Context(), userIDFrom(r), &rule); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) UpdateQualityRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var rule core.QualityRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.ID = id
	if err := h.facade.UpdateQualityRule(r.Context(), userIDFrom(r), &rule); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) DeleteQualityRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := h.facade.DeleteQualityRule(r.Context(), userIDFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Chat ---

func (h *Handler) ListChatSessions(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListChatSessions(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateChatSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s, err := h.facade.CreateChatSession(r.Context(), userIDFrom(r), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

func (h *Handler) DeleteChatSession(w http.ResponseWriter, r *http.Request) {
	if err := h.facade.DeleteChatSession(r.Context(), userIDFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListChatMessages(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListChatMessages(r.Context(), userIDFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) AppendChatMessage(w http.ResponseWriter, r *http.Request) {
	var m core.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	m.SessionID = chi.URLParam(r, "id")
	saved, err := h.facade.AppendChatMessage(r.Context(), userIDFrom(r), &m)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

// --- Saved charts ---

func (h *Handler) ListSavedCharts(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListSavedCharts(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveChart(w http.ResponseWriter, r *http.Request) {
	var c core.SavedChart
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	saved, err := h.facade.SaveChart(r.Context(), userIDFrom(r), &c)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) RunSavedChart(w http.ResponseWriter, r *http.Request) {
	res, err := h.facade.RunSavedChart(r.Context(), userIDFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteChart(w http.ResponseWriter, r *http.Request) {
	if err := h.facade.DeleteChart(r.Context(), userIDFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Schema browsing ---

func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	out, err := h.facade.ListSchemas(r.Context(), userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	schema := r.URL.Query().Get("schema")
	if schema == "" {
		respondError(w, http.StatusBadRequest, "schema query parameter is required")
		return
	}
	out, err := h.facade.ListTables(r.Context(), userIDFrom(r), schema)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) ListColumns(w http.ResponseWriter, r *http.Request) {
	schema := r.URL.Query().Get("schema")
	table := r.URL.Query().Get("table")
	if schema == "" || table == "" {
		respondError(w, http.StatusBadRequest, "schema and table query parameters are required")
		return
	}
	out, err := h.facade.ListColumns(r.Context(), userIDFrom(r), schema, table)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) ListColumnMetadata(w http.ResponseWriter, r *http.Request) {
	schema := r.URL.Query().Get("schema")
	table := r.URL.Query().Get("table")
	if schema == "" || table == "" {
		respondError(w, http.StatusBadRequest, "schema and table query parameters are required")
		return
	}
	out, err := h.facade.ListColumnMetadata(r.Context(), userIDFrom(r), schema, table)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}
