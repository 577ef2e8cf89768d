package auth

import (
	"context"
	"errors"
)

// ErrNoSubject means the request carries no verified token subject.
var ErrNoSubject = errors.New("no token subject")

type subjectKey struct{}

// WithSubject stores the user id the token was issued to.
func WithSubject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, subjectKey{}, userID)
}

// SubjectFromContext returns the token's user id, or "" outside JWTMiddleware.
func SubjectFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(subjectKey{}).(string)
	return userID
}

// RequireSubject is SubjectFromContext for handlers that act on the
// caller's own records.
func RequireSubject(ctx context.Context) (string, error) {
	if userID := SubjectFromContext(ctx); userID != "" {
		return userID, nil
	}
	return "", ErrNoSubject
}
