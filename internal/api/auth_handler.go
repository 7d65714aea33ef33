package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"

	"pipedash/internal/core"
	"pipedash/internal/service"
)

type AuthHandler struct {
	authSvc *service.AuthService
	store   *sessions.CookieStore
}

func NewAuthHandler(authSvc *service.AuthService, sessionKey string) *AuthHandler {
	// PIPEDASH_KEY doubles as the session encryption key
	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   false, // Set to true if HTTPS
	}

	return &AuthHandler{
		authSvc: authSvc,
		store:   store,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DoSetup creates the first admin account. Rejected once any user
// exists.
func (h *AuthHandler) DoSetup(w http.ResponseWriter, r *http.Request) {
	hasUsers, err := h.authSvc.HasUsers()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hasUsers {
		respondError(w, http.StatusConflict, "Setup already completed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.authSvc.SetupAdmin(req.Username, req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *AuthHandler) DoLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.authSvc.Authenticate(req.Username, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	session, _ := h.store.Get(r, "pipedash-session")
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Save(r, w)

	respondJSON(w, http.StatusOK, map[string]string{"username": user.Username})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.store.Get(r, "pipedash-session")
	session.Options.MaxAge = -1
	session.Save(r, w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateApiKey mints a programmatic-access key for the logged-in user.
// The plaintext key is shown exactly once; only its hash is stored.
func (h *AuthHandler) CreateApiKey(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(userIDFrom(r), 10, 64)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	plainKey, apiKey, err := h.authSvc.GenerateApiKey(userID, req.Description)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"key":       plainKey,
		"keyPrefix": apiKey.KeyPrefix,
		"id":        apiKey.ID,
	})
}

// ListApiKeys returns only the keys the logged-in user owns.
func (h *AuthHandler) ListApiKeys(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(userIDFrom(r), 10, 64)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	keys, err := h.authSvc.ListApiKeys(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, keys)
}

func (h *AuthHandler) RevokeApiKey(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(userIDFrom(r), 10, 64)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := h.authSvc.RevokeApiKey(id, userID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SessionMiddleware guards routes behind a logged-in session and puts
// the user identity in context.
func (h *AuthHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.store.Get(r, "pipedash-session")
		id, ok := session.Values["user_id"].(int64)
		if !ok || id == 0 {
			respondError(w, http.StatusUnauthorized, "Not logged in")
			return
		}

		ctx := context.WithValue(r.Context(), core.ContextKeyUserID, strconv.FormatInt(id, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
