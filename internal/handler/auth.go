package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/xswarm-forum/internal/apperror"
	"github.com/sakif/xswarm-forum/internal/auth"
	"github.com/sakif/xswarm-forum/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler manages password signup/login, the optional GitHub OAuth
// flow, and session cookies.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup / HandleLogin → create or check credentials, set the JWT cookie
//   - HandleLogout               → clear the JWT cookie
//   - HandleMe                   → return the logged-in user, or null
//   - HandleGitHubLogin          → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback       → exchange the code, log in or register, set the cookie
//
// DEPENDENCY CHAIN:
//   - svc    *service.AuthService   → business rules (termination, conflicts)
//   - tokens *auth.TokenService     → session lifetime for the cookie
//   - github *auth.GitHubProvider   → nil when GitHub login is not configured
type AuthHandler struct {
	svc    *service.AuthService
	tokens *auth.TokenService
	github *auth.GitHubProvider
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(svc *service.AuthService, tokens *auth.TokenService, github *auth.GitHubProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		tokens: tokens,
		github: github,
		logger: logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Pfp      string `json:"pfp"`
}

type authResponse struct {
	Success bool `json:"success"`
	User    any  `json:"user"`
}

// HandleSignup creates a password account and logs it in.
//
// HTTP: POST /api/signup {username, password, pfp?}
//
//	200 {success, user} + session cookie
//	400 username taken / invalid input
//	403 {terminated: true} if the username belongs to a banned account
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Signup(r.Context(), req.Username, req.Password, req.Pfp)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, r, res.Token, h.tokens.TTL())
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: res.User})
}

// HandleLogin checks credentials and establishes a session.
//
// HTTP: POST /api/login {username, password}
//
//	200 {success, user} + session cookie
//	401 bad credentials
//	403 {terminated: true}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, r, res.Token, h.tokens.TTL())
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: res.User})
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /api/logout
//
// Sessions are stateless JWTs, so "logout" only deletes the client-side
// cookie. The token stays valid until it expires, but the browser no longer
// sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HandleMe returns the logged-in user, or JSON null for an anonymous caller.
//
// HTTP: GET /api/me (OptionalAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// A nil *model.User encodes as null.
	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds if the two match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Log in the linked account, or register a new one
//  4. Set the session cookie and redirect home
//
// A terminated account is sent back to "/?auth=terminated" without a cookie.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 3: Log in or register ---
	res, err := h.svc.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		if errors.Is(err, apperror.ErrTerminated) {
			h.logger.Info("auth callback: terminated account", slog.Int64("githubID", ghUser.ID))
			http.Redirect(w, r, "/?auth=terminated", http.StatusSeeOther)
			return
		}
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 4: Session cookie and redirect ---
	auth.SetSessionCookie(w, r, res.Token, h.tokens.TTL())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// actorID returns the session's user ID, or "" for an anonymous request.
// The services turn "" into ErrUnauthenticated.
func actorID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
