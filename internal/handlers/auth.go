package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/types"
	"golang.org/x/time/rate"
)

const (
	defaultTokenTTL = 24 * time.Hour

	// Five login attempts per minute per client address.
	loginInterval    = 12 * time.Second
	loginBurst       = 5
	maxTrackedLogins = 10000
)

type contextKey string

const contextUserKey contextKey = "user"

// Authenticator verifies bearer tokens and loads the calling user.
type Authenticator struct {
	users  *services.UserService
	secret []byte
}

func NewAuthenticator(users *services.UserService, jwtSecret string) *Authenticator {
	return &Authenticator{users: users, secret: []byte(jwtSecret)}
}

// RequireAuth enforces JWT authentication and injects the user into context.
// Suspended users are refused even with a valid token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := a.authenticate(w, r, tokenString)
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), contextUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves a token to an active user, writing the error
// response when it cannot.
func (a *Authenticator) authenticate(w http.ResponseWriter, r *http.Request, tokenString string) (types.User, bool) {
	subject, err := parseTokenSubject(tokenString, a.secret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}
	userID, err := strconv.Atoi(subject)
	if err != nil || userID < 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}

	user, err := a.users.GetByID(r.Context(), userID)
	if err != nil {
		if services.StatusOf(err) == http.StatusNotFound {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.User{}, false
		}
		respondError(w, r, err)
		return types.User{}, false
	}
	if user.Status != types.UserActive {
		writeError(w, http.StatusForbidden, "account is suspended")
		return types.User{}, false
	}
	return user, true
}

// RequireRole allows the request through only for the given roles.
// It must run after RequireAuth.
func RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient role")
		})
	}
}

var (
	requireStaff   = RequireRole(types.RoleLibrarian, types.RoleManager)
	requireManager = RequireRole(types.RoleManager)
)

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// actor returns the authenticated caller. Routes using it sit behind
// RequireAuth, so a missing user is a wiring error.
func actor(r *http.Request) services.Actor {
	user, _ := userFromContext(r.Context())
	return services.Actor{ID: user.ID, Role: user.Role}
}

// AuthHandler provides registration, login and account endpoints.
type AuthHandler struct {
	users    *services.UserService
	secret   []byte
	tokenTTL time.Duration
	limiter  *ipLimiter
}

func NewAuthHandler(users *services.UserService, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthHandler{
		users:    users,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		limiter:  newIPLimiter(rate.Every(loginInterval), loginBurst),
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, users *services.UserService, auth *Authenticator, jwtSecret string, tokenTTL time.Duration) {
	handler := NewAuthHandler(users, jwtSecret, tokenTTL)

	r.Post("/register", handler.Register)
	r.With(handler.throttle).Post("/login", handler.Login)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/me", handler.Me)
		r.Put("/password", handler.ChangePassword)
	})
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// Register creates a USER account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.FirstName, req.LastName, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.respondWithToken(w, http.StatusCreated, user)
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.respondWithToken(w, http.StatusOK, user)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.users.ChangePassword(r.Context(), actor(r).ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user types.User) {
	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, User: user})
}

func (h *AuthHandler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(loginInterval.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newIPLimiter(every rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter), every: every, burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxTrackedLogins {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[ip] = lim
	}
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
