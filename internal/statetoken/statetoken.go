// Package statetoken issues and verifies the OAuth state parameter as a
// signed, self-contained correlation token. The Discord user identity rides
// through the provider redirect inside the token, so no server-side state is
// kept between the authorization redirect and the callback.
package statetoken

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/jonboulle/clockwork"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
)

// Claims is the decoded payload of a verified state token.
type Claims struct {
	// UserID is the Discord user the login attempt belongs to.
	UserID string
	// AttemptID correlates the begin and callback log lines of one attempt.
	AttemptID string
}

// Manager signs and verifies state tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	node   *snowflake.Node
	clock  clockwork.Clock
}

// NewManager constructs a Manager. The secret must be at least 32 bytes.
func NewManager(secret []byte, ttl time.Duration, node *snowflake.Node, clock clockwork.Clock) (*Manager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("state secret must be at least 32 bytes")
	}
	if node == nil {
		return nil, fmt.Errorf("snowflake node is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{secret: secret, ttl: ttl, node: node, clock: clock}, nil
}

// Issue signs a state token for the given user identity.
func (m *Manager) Issue(userID string) (string, Claims, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", Claims{}, domain.ErrMissingUser
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: m.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", Claims{}, fmt.Errorf("new signer: %w", err)
	}

	now := m.clock.Now().UTC()
	attemptID := m.node.Generate().String()
	claims := gojwt.Claims{
		Subject:   userID,
		ID:        attemptID,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(m.ttl)),
	}

	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", Claims{}, fmt.Errorf("serialize state token: %w", err)
	}
	return token, Claims{UserID: userID, AttemptID: attemptID}, nil
}

// Verify checks the signature and expiry of a state token and recovers the
// user identity. Any failure maps to domain.ErrInvalidState.
func (m *Manager) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, domain.ErrInvalidState
	}

	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}

	var claims gojwt.Claims
	if err := parsed.Claims(m.secret, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	if err := claims.Validate(gojwt.Expected{Time: m.clock.Now().UTC()}); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, domain.ErrInvalidState
	}

	return Claims{UserID: claims.Subject, AttemptID: claims.ID}, nil
}
