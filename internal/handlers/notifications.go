package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/platform/auth"
	"github.com/lahm-market/api/internal/platform/httpx"
	"github.com/lahm-market/api/internal/services"
)

// NotificationHandlers exposes the per-actor inbox endpoints. Every actor
// kind reads its own inbox; staff admins share one.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs the inbox handler group.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{authn: authn, notifications: notifications}
}

// Routes registers the inbox endpoints on the provided router.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.ListNotifications)
	r.Get("/unread-count", h.UnreadCount)
	r.Post("/{notificationID}:read", h.MarkRead)
	r.Post("/:read-all", h.MarkAllRead)
	r.Delete("/{notificationID}", h.DeleteNotification)
	r.Delete("/", h.ClearNotifications)
}

type notificationPayload struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Title     textPayload `json:"title"`
	Message   textPayload `json:"message"`
	Rendered  string      `json:"rendered,omitempty"`
	Link      string      `json:"link,omitempty"`
	Unread    bool        `json:"unread"`
	CreatedAt string      `json:"created_at"`
}

type notificationListResponse struct {
	Items         []notificationPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

type affectedCountResponse struct {
	Affected int `json:"affected"`
}

// ListNotifications returns the caller's inbox, all records or unread only.
// Titles render in the Accept-Language variant.
func (h *NotificationHandlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.inboxRequest(w, r)
	if !ok {
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	onlyUnread := strings.EqualFold(r.URL.Query().Get("only_unread"), "true")
	page, err := h.notifications.List(r.Context(), actor, onlyUnread, pager)
	if err != nil {
		writeNotificationError(r, w, err)
		return
	}

	lang := requestLanguage(r)
	resp := notificationListResponse{
		Items:         make([]notificationPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, notification := range page.Items {
		resp.Items = append(resp.Items, buildNotificationPayload(notification, lang))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// UnreadCount returns the number of unread records in the caller's inbox.
func (h *NotificationHandlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.inboxRequest(w, r)
	if !ok {
		return
	}

	count, err := h.notifications.UnreadCount(r.Context(), actor)
	if err != nil {
		writeNotificationError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, unreadCountResponse{Count: count})
}

// MarkRead marks one inbox record as read.
func (h *NotificationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.inboxRequest(w, r)
	if !ok {
		return
	}

	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return
	}

	if err := h.notifications.MarkRead(r.Context(), actor, notificationID); err != nil {
		writeNotificationError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead marks the caller's entire inbox as read.
func (h *NotificationHandlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.inboxRequest(w, r)
	if !ok {
		return
	}

	affected, err := h.notifications.MarkAllRead(r.Context(), actor)
	if err != nil {
		writeNotificationError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, affectedCountResponse{Affected: affected})
}

// DeleteNotification removes one record from the caller's inbox.
func (h *NotificationHandlers) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.inboxRequest(w, r)
	if !ok {
		return
	}

	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return
	}

	if err := h.notifications.Delete(r.Context(), actor, notificationID); err != nil {
		writeNotificationError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearNotifications empties the caller's inbox.
func (h *NotificationHandlers) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.inboxRequest(w, r)
	if !ok {
		return
	}

	affected, err := h.notifications.Clear(r.Context(), actor)
	if err != nil {
		writeNotificationError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, affectedCountResponse{Affected: affected})
}

func (h *NotificationHandlers) inboxRequest(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	if h.notifications == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "notification service not configured", http.StatusServiceUnavailable))
		return domain.Actor{}, false
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, false
	}
	return actor, true
}

func buildNotificationPayload(notification domain.Notification, lang string) notificationPayload {
	return notificationPayload{
		ID:        notification.ID,
		Type:      string(notification.Type),
		Title:     buildTextPayload(notification.Title),
		Message:   buildTextPayload(notification.Message),
		Rendered:  notification.Title.In(lang),
		Link:      stringPtrValue(notification.Link),
		Unread:    notification.Unread,
		CreatedAt: formatTime(notification.CreatedAt),
	}
}

func writeNotificationError(r *http.Request, w http.ResponseWriter, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput), errors.Is(err, services.ErrNotificationInvalidTarget):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
