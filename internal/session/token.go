package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/talkform/talkform-backend/internal/pkg/apierr"
)

// Session is the stateless capability a respondent holds to resume a
// conversation: no server-side session table, just a signed claim pairing the
// form with its form response.
type Session struct {
	FormID         uuid.UUID
	FormResponseID uuid.UUID
	CreatedAt      time.Time
}

type Claims struct {
	FormID         string `json:"formId"`
	FormResponseID string `json:"responseId"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	ttl    time.Duration
}

func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Codec{secret: []byte(secret), ttl: ttl}, nil
}

func (c *Codec) Sign(formID, formResponseID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		FormID:         formID.String(),
		FormResponseID: formResponseID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks signature and expiry; any failure maps to ErrInvalidSession
// so callers don't leak parser internals to the client.
func (c *Codec) Verify(tokenString string) (*Session, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apierr.ErrInvalidSession, err.Error())
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apierr.ErrInvalidSession
	}

	formID, err := uuid.Parse(claims.FormID)
	if err != nil {
		return nil, apierr.ErrInvalidSession
	}
	formResponseID, err := uuid.Parse(claims.FormResponseID)
	if err != nil {
		return nil, apierr.ErrInvalidSession
	}

	out := &Session{FormID: formID, FormResponseID: formResponseID}
	if claims.IssuedAt != nil {
		out.CreatedAt = claims.IssuedAt.Time
	}
	return out, nil
}
