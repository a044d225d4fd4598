// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/accord-labs/internal/domain"
	"github.com/ashureev/accord-labs/internal/store"
)

const (
	AnonCookieName       = "accord_anon_id"
	ClientHeaderName     = "X-Accord-Client-ID"
	DefaultClientIDValue = "default"
	anonCookieMaxAge     = 30 * 24 * time.Hour
)

type contextKey int

const (
	participantIDKey contextKey = iota
	displayNameKey
	clientIDKey
)

var (
	anonIDPattern   = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// ParticipantIDFromContext extracts the participant ID from the request context.
func ParticipantIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(participantIDKey).(string); ok {
		return v
	}
	return ""
}

// DisplayNameFromContext extracts the display name from the request context.
func DisplayNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(displayNameKey).(string); ok {
		return v
	}
	return ""
}

// ClientIDFromContext extracts the per-tab client ID from the request context.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return DefaultClientIDValue
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeClientID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !clientIDPattern.MatchString(id) {
		return DefaultClientIDValue
	}
	return id
}

func deriveDisplayName(participantID string) string {
	if len(participantID) > 13 {
		return "anon-" + participantID[len(participantID)-8:]
	}
	return "anon-participant"
}

func ensureParticipant(ctx context.Context, repo store.Repository, participantID string) error {
	p, err := repo.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if p != nil {
		return nil
	}

	now := time.Now()
	return repo.UpsertParticipant(ctx, &domain.Participant{
		ParticipantID: participantID,
		DisplayName:   deriveDisplayName(participantID),
		LastSeenAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}

	setAnonCookie(w, id, isDev)
	return id, nil
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func clientIDFromRequest(r *http.Request) string {
	cid := r.Header.Get(ClientHeaderName)
	if cid == "" {
		cid = r.URL.Query().Get("client_id")
	}
	return sanitizeClientID(cid)
}

// Middleware injects anonymous per-device identity and per-request client ID.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			participantID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureParticipant(r.Context(), repo, participantID); err != nil {
				http.Error(w, `{"error":"failed to initialize anonymous participant"}`, http.StatusInternalServerError)
				return
			}

			displayName := deriveDisplayName(participantID)
			clientID := clientIDFromRequest(r)

			ctx := context.WithValue(r.Context(), participantIDKey, participantID)
			ctx = context.WithValue(ctx, displayNameKey, displayName)
			ctx = context.WithValue(ctx, clientIDKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
