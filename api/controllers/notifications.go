package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/api/responses"
	"github.com/leafline-books/leafline-backend/internal/notifications"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
)

// ListNotifications returns one cursor page of the user's notifications.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := actingUser(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := notifications.ListParams{UserID: userID}

		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			params.Limit = value
		}

		params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

		if unread := strings.TrimSpace(r.URL.Query().Get("unreadOnly")); unread != "" {
			value, err := strconv.ParseBool(unread)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unreadOnly value"))
				return
			}
			params.UnreadOnly = value
		}

		resp, err := svc.List(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// MarkNotificationRead marks one notification as read.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return notificationAction(svc, logg, func(r *http.Request, svc notifications.Service, userID, notificationID uuid.UUID) (any, error) {
		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			return nil, err
		}
		return map[string]bool{"read": true}, nil
	})
}

// MarkNotificationUnread returns a notification to the unread state.
func MarkNotificationUnread(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return notificationAction(svc, logg, func(r *http.Request, svc notifications.Service, userID, notificationID uuid.UUID) (any, error) {
		if err := svc.MarkUnread(r.Context(), userID, notificationID); err != nil {
			return nil, err
		}
		return map[string]bool{"read": false}, nil
	})
}

// DeleteNotification removes one notification.
func DeleteNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return notificationAction(svc, logg, func(r *http.Request, svc notifications.Service, userID, notificationID uuid.UUID) (any, error) {
		if err := svc.Delete(r.Context(), userID, notificationID); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": true}, nil
	})
}

// MarkAllNotificationsRead marks the user's whole feed as read.
func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := actingUser(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := svc.MarkAllRead(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"updated": updated})
	}
}

// NotificationUnreadCount returns the user's unread badge count.
func NotificationUnreadCount(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := actingUser(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		count, err := svc.UnreadCount(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"unread": count})
	}
}

func notificationAction(svc notifications.Service, logg *logger.Logger, action func(*http.Request, notifications.Service, uuid.UUID, uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := actingUser(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		notificationID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "notificationId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification id"))
			return
		}

		resp, err := action(r, svc, userID, notificationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
