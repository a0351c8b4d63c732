package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/posfleet-core/internal/auth"
)

// ticketTTL is how long a push channel ticket is valid.
const ticketTTL = 60 * time.Second

// defaultTokenTTL applies when security.jwt.access_token_ttl is unset.
const defaultTokenTTL = 480 // minutes

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	Token     string         `json:"token"`
	TokenType string         `json:"tokenType"`
	ExpiresIn int            `json:"expiresIn"`
	User      auth.Principal `json:"user"`
}

// handleLogin checks credentials against the users table and returns a
// signed access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	u, err := s.fleet.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Info("login rejected", "username", req.Username)
		}
		s.writeServiceError(w, r, err)
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	principal := auth.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
	token, err := auth.GenerateAccessToken(principal, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("signing access token failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: ttl * 60,
		User:      principal,
	})
}

// handleMe returns the caller's identity and permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authEnabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authEnabled": true,
		"user":        p,
		"permissions": auth.PermissionsForRole(p.Role),
	})
}

// handleWSTicket issues a single-use ticket for opening the push channel
// without putting the access token in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	ticket := s.tickets.issue(p)
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":    ticket,
		"expiresIn": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending push channel tickets. Tickets are single-use
// and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
	now     func() time.Time
}

type ticketEntry struct {
	principal auth.Principal
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry), now: time.Now}
}

func (t *ticketStore) issue(p auth.Principal) string {
	ticket := generateTicket()
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{principal: p, expiresAt: t.now().Add(ticketTTL)}
	t.mu.Unlock()
	return ticket
}

// consume validates and removes a ticket.
func (t *ticketStore) consume(ticket string) (auth.Principal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return auth.Principal{}, false
	}
	delete(t.tickets, ticket)
	if !t.now().Before(entry.expiresAt) {
		return auth.Principal{}, false
	}
	return entry.principal, true
}

func (t *ticketStore) clean() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.clean()
		}
	}
}

// ticketBytes is the number of random bytes used for tickets.
const ticketBytes = 32

func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// authenticateSocket resolves the caller of a push channel request from
// ?ticket= or ?token=. With auth disabled it always succeeds.
func (s *Server) authenticateSocket(r *http.Request) (auth.Principal, bool) {
	if !s.secCfg.AuthEnabled {
		return auth.Principal{}, true
	}
	q := r.URL.Query()
	if ticket := q.Get("ticket"); ticket != "" {
		return s.tickets.consume(ticket)
	}
	if token := q.Get("token"); token != "" {
		claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
		if err != nil {
			return auth.Principal{}, false
		}
		return claims.Principal(), true
	}
	return auth.Principal{}, false
}
