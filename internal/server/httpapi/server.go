package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/auth"
	"collabhub/platform/internal/server/config"
	"collabhub/platform/internal/server/crypto"
	"collabhub/platform/internal/server/store"
)

type Server struct {
	cfg      config.Config
	store    store.Store
	realtime http.Handler
	limiter  *RateLimiter
}

// NewServer wires the REST and auth surface. realtime may be nil when
// the websocket feed is not enabled.
func NewServer(cfg config.Config, st store.Store, realtime http.Handler) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		realtime: realtime,
		limiter: NewRateLimiter(RateLimitConfig{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     cfg.RateLimitBurst,
		}),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	r.Use(s.limiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/v1/signup", s.handleSignup)
	r.Post("/auth/v1/token", s.handleLogin)
	r.Post("/auth/v1/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/v1/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/v1/user", s.handleCurrentUser)

	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/profiles/{userID}", s.handleGetProfile)
		r.Patch("/profiles/{userID}", s.handlePatchProfile)
		r.Get("/{table}", s.handleListRows)
		r.Post("/{table}", s.handleInsertRow)
		r.Patch("/{table}/{id}", s.handleUpdateRow)
		r.Delete("/{table}/{id}", s.handleDeleteRow)
	})

	r.With(s.authMiddleware).Post("/rpc/v1/{fn}", s.handleRPC)

	if s.realtime != nil {
		r.With(s.authMiddleware).Get("/realtime/v1/ws", s.realtime.ServeHTTP)
	}

	return r
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if req.Email == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "weak_password")
		return
	}
	if !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}

	user := store.AuthUser{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Metadata:     models.SessionMetadata{Name: req.Name, Role: req.Role},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAuthUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	// The profile row appears later, once the provisioner runs. Clients
	// poll for it after signup.
	session, err := s.issueSession(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetAuthUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	session, err := s.issueSession(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	tokenHash := crypto.HashToken(req.RefreshToken)
	session, err := s.store.GetRefreshSession(r.Context(), tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	user, err := s.store.GetAuthUserByID(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}
	if err := s.store.RevokeRefreshSession(r.Context(), session.ID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	fresh, err := s.issueSession(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, fresh)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	_ = s.store.RevokeRefreshSessionsByUser(r.Context(), claims.UserID, time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	s.writeProfile(w, r, claims.UserID)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id")
		return
	}
	s.writeProfile(w, r, userID)
}

func (s *Server) writeProfile(w http.ResponseWriter, r *http.Request, userID string) {
	profile, err := s.store.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type patchProfileRequest struct {
	Name       *string `json:"name,omitempty"`
	Bio        *string `json:"bio,omitempty"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
	University *string `json:"university,omitempty"`
	Major      *string `json:"major,omitempty"`
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	if claims == nil || claims.UserID != userID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req patchProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	update := store.ProfileUpdate{
		Bio:        req.Bio,
		AvatarURL:  req.AvatarURL,
		University: req.University,
		Major:      req.Major,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != "" {
			update.Name = &name
		}
	}

	profile, err := s.store.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !store.KnownTable(table) {
		writeError(w, http.StatusNotFound, "unknown_table")
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rows, err := s.store.ListRows(r.Context(), table, r.URL.Query().Get("project_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	docs := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.Doc)
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !store.KnownTable(table) {
		writeError(w, http.StatusNotFound, "unknown_table")
		return
	}

	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["id"] = id
	}
	projectID, _ := doc["project_id"].(string)

	now := time.Now().UTC()
	encoded, err := json.Marshal(doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	row, err := s.store.InsertRow(r.Context(), store.Row{
		ID:        id,
		Table:     table,
		ProjectID: projectID,
		Doc:       encoded,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeRaw(w, http.StatusCreated, row.Doc)
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	if !store.KnownTable(table) {
		writeError(w, http.StatusNotFound, "unknown_table")
		return
	}

	var doc json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	row, err := s.store.UpdateRow(r.Context(), table, id, doc)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "row_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeRaw(w, http.StatusOK, row.Doc)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	if !store.KnownTable(table) {
		writeError(w, http.StatusNotFound, "unknown_table")
		return
	}

	if _, err := s.store.DeleteRow(r.Context(), table, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "row_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type rpcSummaryRequest struct {
	ProjectID string `json:"project_id"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "fn") {
	case "project_summary":
		var req rpcSummaryRequest
		if err := decodeJSON(r, &req); err != nil || req.ProjectID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		summary, err := s.store.ProjectSummary(r.Context(), req.ProjectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	default:
		writeError(w, http.StatusNotFound, "rpc_not_found")
	}
}

func (s *Server) issueSession(ctx context.Context, user store.AuthUser) (models.Session, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Metadata.Name,
		Role:   user.Metadata.Role,
	})
	if err != nil {
		return models.Session{}, err
	}

	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return models.Session{}, err
	}

	now := time.Now().UTC()
	if err := s.store.CreateRefreshSession(ctx, store.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}); err != nil {
		return models.Session{}, err
	}

	return models.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.cfg.AccessTokenTTL),
		UserID:       user.ID,
		Metadata:     user.Metadata,
	}, nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("token") // websocket clients cannot set headers everywhere
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRaw(w http.ResponseWriter, status int, payload json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
