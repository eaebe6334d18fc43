package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/api/middleware"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
)

// actingUser resolves the authenticated user id placed on the context
// by the user-context middleware.
func actingUser(ctx context.Context) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}
