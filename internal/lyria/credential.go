package lyria

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Credential authenticates a single connection attempt.
type Credential struct {
	// Value is either an API key or an ephemeral token name.
	Value string

	// Ephemeral marks short-lived tokens minted for one session.
	Ephemeral bool

	// ExpireTime is when an ephemeral token stops working.
	ExpireTime time.Time
}

// Minter produces a credential for every connection attempt.
type Minter interface {
	Mint(ctx context.Context) (Credential, error)
}

// MinterFunc adapts a function to Minter.
type MinterFunc func(ctx context.Context) (Credential, error)

func (f MinterFunc) Mint(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// StaticKey hands out the same API key every time.
type StaticKey string

func (k StaticKey) Mint(context.Context) (Credential, error) {
	if k == "" {
		return Credential{}, errors.New("lyria: no API key configured")
	}
	return Credential{Value: string(k)}, nil
}

// EphemeralMinter trades a long-lived API key for a single-use token, so
// the key itself never travels over the music websocket.
type EphemeralMinter struct {
	APIKey     string
	APIVersion string
	TTL        time.Duration

	now func() time.Time
}

// NewEphemeralMinter returns a minter issuing tokens valid for ttl.
func NewEphemeralMinter(apiKey, apiVersion string, ttl time.Duration) *EphemeralMinter {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &EphemeralMinter{APIKey: apiKey, APIVersion: apiVersion, TTL: ttl, now: time.Now}
}

// Mint creates a fresh genai client and asks it for a one-use token.
func (m *EphemeralMinter) Mint(ctx context.Context) (Credential, error) {
	if m.APIKey == "" {
		return Credential{}, errors.New("lyria: no API key configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      m.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: m.APIVersion},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("lyria: create genai client: %w", err)
	}

	now := m.now()
	uses := int32(1)
	expire := now.Add(m.TTL)
	tok, err := client.AuthTokens.Create(ctx, &genai.CreateAuthTokenConfig{
		ExpireTime:           expire,
		NewSessionExpireTime: now.Add(time.Minute),
		Uses:                 &uses,
	})
	if err != nil {
		return Credential{}, &Error{Code: "token_failed", Message: "failed to mint ephemeral token", Cause: err}
	}
	return Credential{Value: tok.Name, Ephemeral: true, ExpireTime: expire}, nil
}
