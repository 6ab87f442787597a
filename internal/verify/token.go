package verify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"epoch/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid pending token")

type pendingClaims struct {
	jwt.RegisteredClaims
	Verifier string  `json:"vfr"`
	From     int64   `json:"from"`
	To       int64   `json:"to"`
	IDs      []int64 `json:"ids"`
}

// Seal signs the pending view so a stateless client can hand it back later.
func (w *Workflow) Seal(p *Pending) (string, error) {
	now := w.now()
	claims := pendingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "epoch",
			Subject:   p.Target,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(w.ttl)),
		},
		Verifier: p.Verifier,
		From:     p.From.Unix(),
		To:       p.To.Unix(),
		IDs:      p.IDs(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(w.secret)
}

// Unseal restores a pending view. Logs signed since it was sealed drop out;
// logs created since never join it.
func (w *Workflow) Unseal(ctx context.Context, token string) (*Pending, error) {
	var claims pendingClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return w.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(w.now), jwt.WithIssuer("epoch"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p, err := w.Open(ctx, claims.Verifier, claims.Subject, time.Unix(claims.From, 0), time.Unix(claims.To, 0))
	if err != nil {
		return nil, err
	}
	p.logs = slices.DeleteFunc(p.logs, func(l model.SessionLog) bool {
		return !slices.Contains(claims.IDs, l.ID)
	})
	return p, nil
}
