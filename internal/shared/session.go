package shared

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// SessionManager resolves bearer tokens into principals using sessions stored in Redis.
// Sessions are written by the login service; this manager only reads them, apart from
// Issue which exists for operational tooling and tests.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
}

type sessionPayload struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client: client,
		ttl:    ttl,
		secret: []byte(secret),
	}
}

// Load resolves the bearer token of the request. It returns ErrUnauthorized when the
// token is missing, unknown or malformed.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Principal, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, ErrUnauthorized
	}
	key, err := sm.redisKey(token)
	if err != nil {
		return nil, err
	}
	payload, err := sm.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, ErrUnauthorized
	}
	userID, err := uuid.Parse(stored.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	orgID, err := uuid.Parse(stored.OrganizationID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	role := Role(strings.ToUpper(stored.Role))
	if !role.Valid() {
		return nil, ErrUnauthorized
	}
	return &Principal{UserID: userID, OrganizationID: orgID, Role: role}, nil
}

// Issue stores a session for the principal and returns the opaque token.
func (sm *SessionManager) Issue(ctx context.Context, p Principal) (string, error) {
	token := uuid.NewString()
	key, err := sm.redisKey(token)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(sessionPayload{
		UserID:         p.UserID.String(),
		OrganizationID: p.OrganizationID.String(),
		Role:           string(p.Role),
	})
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, key, data, sm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Revoke removes the session bound to token.
func (sm *SessionManager) Revoke(ctx context.Context, token string) error {
	key, err := sm.redisKey(token)
	if err != nil {
		return err
	}
	if err := sm.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// redisKey hashes the token with the session secret so raw tokens never appear in Redis.
func (sm *SessionManager) redisKey(token string) (string, error) {
	h, err := blake2b.New256(sm.secret)
	if err != nil {
		return "", err
	}
	h.Write([]byte(token))
	return "session:" + hex.EncodeToString(h.Sum(nil)), nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
