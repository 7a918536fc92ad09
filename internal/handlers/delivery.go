package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/platform/auth"
	"github.com/lahm-market/api/internal/platform/httpx"
	"github.com/lahm-market/api/internal/services"
)

const maxDeliveryBodySize = 16 * 1024

// DeliveryHandlers exposes the driver-facing delivery endpoints.
type DeliveryHandlers struct {
	authn      *auth.Authenticator
	deliveries services.DeliveryService
	pings      rateLimiter
}

// NewDeliveryHandlers constructs the driver delivery handler group.
func NewDeliveryHandlers(authn *auth.Authenticator, deliveries services.DeliveryService) *DeliveryHandlers {
	return &DeliveryHandlers{
		authn:      authn,
		deliveries: deliveries,
		pings:      newLocationPingLimiter(),
	}
}

// Routes registers the driver delivery endpoints on the provided router.
func (h *DeliveryHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.ActorDriver))
	}
	r.Get("/tasks", h.ListTasks)
	r.Post("/{trackingID}:advance", h.AdvanceDelivery)
	r.Post("/{trackingID}:complete", h.CompleteDelivery)
	r.Post("/{trackingID}:fail", h.FailDelivery)
	r.Post("/{trackingID}:location", h.ReportLocation)
}

type advanceDeliveryRequest struct {
	Status   string      `json:"status"`
	Location *geoPayload `json:"location,omitempty"`
	Note     string      `json:"note,omitempty"`
}

type deliveryProofRequest struct {
	Signature string `json:"signature,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	Note      string `json:"note,omitempty"`
}

type completeDeliveryRequest struct {
	Proof    deliveryProofRequest `json:"proof"`
	Location *geoPayload          `json:"location,omitempty"`
	Note     string               `json:"note,omitempty"`
}

type failDeliveryRequest struct {
	Reason string `json:"reason"`
}

type reportLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type driverPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile,omitempty"`
}

type trackedLocationPayload struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	ReportedAt string  `json:"reported_at"`
}

type timelineEntryPayload struct {
	Status    string      `json:"status"`
	Location  *geoPayload `json:"location,omitempty"`
	Note      string      `json:"note,omitempty"`
	CreatedAt string      `json:"created_at"`
}

type deliveryProofPayload struct {
	Signature string `json:"signature,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	Note      string `json:"note,omitempty"`
}

type deliveryPayload struct {
	ID               string                  `json:"id"`
	OrderID          string                  `json:"order_id"`
	Driver           driverPayload           `json:"driver"`
	Status           string                  `json:"status"`
	CurrentLocation  *trackedLocationPayload `json:"current_location,omitempty"`
	Timeline         []timelineEntryPayload  `json:"timeline,omitempty"`
	Proof            *deliveryProofPayload   `json:"proof,omitempty"`
	EstimatedArrival string                  `json:"estimated_arrival,omitempty"`
	ActualArrival    string                  `json:"actual_arrival,omitempty"`
	CreatedAt        string                  `json:"created_at"`
	UpdatedAt        string                  `json:"updated_at"`
}

type deliveryListResponse struct {
	Items         []deliveryPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

// ListTasks returns the authenticated driver's deliveries, open ones by default.
func (h *DeliveryHandlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.deliveries == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "delivery service not configured", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	onlyOpen := !strings.EqualFold(r.URL.Query().Get("include_closed"), "true")
	page, err := h.deliveries.ListForDriver(r.Context(), actor.ID, onlyOpen, pager)
	if err != nil {
		writeDeliveryError(r, w, err)
		return
	}

	resp := deliveryListResponse{
		Items:         make([]deliveryPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, tracking := range page.Items {
		resp.Items = append(resp.Items, buildDeliveryPayload(tracking))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// AdvanceDelivery moves a delivery one step along its status chain.
func (h *DeliveryHandlers) AdvanceDelivery(w http.ResponseWriter, r *http.Request) {
	actor, trackingID, ok := h.deliveryRequest(w, r)
	if !ok {
		return
	}

	data, err := readLimitedBody(r, maxDeliveryBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req advanceDeliveryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.AdvanceDeliveryCommand{
		TrackingID: trackingID,
		Status:     domain.DeliveryStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Note:       strings.TrimSpace(req.Note),
		Actor:      actor,
	}
	if req.Location != nil {
		cmd.Location = &domain.GeoPoint{Lat: req.Location.Lat, Lng: req.Location.Lng}
	}

	tracking, err := h.deliveries.Advance(r.Context(), cmd)
	if err != nil {
		writeDeliveryError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDeliveryPayload(tracking))
}

// CompleteDelivery finishes a delivery with proof of hand-over.
func (h *DeliveryHandlers) CompleteDelivery(w http.ResponseWriter, r *http.Request) {
	actor, trackingID, ok := h.deliveryRequest(w, r)
	if !ok {
		return
	}

	data, err := readLimitedBody(r, maxDeliveryBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req completeDeliveryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.CompleteDeliveryCommand{
		TrackingID: trackingID,
		Proof:      buildProofFromRequest(req.Proof),
		Note:       strings.TrimSpace(req.Note),
		Actor:      actor,
	}
	if req.Location != nil {
		cmd.Location = &domain.GeoPoint{Lat: req.Location.Lat, Lng: req.Location.Lng}
	}

	tracking, err := h.deliveries.Complete(r.Context(), cmd)
	if err != nil {
		writeDeliveryError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDeliveryPayload(tracking))
}

// FailDelivery terminates a delivery without hand-over.
func (h *DeliveryHandlers) FailDelivery(w http.ResponseWriter, r *http.Request) {
	actor, trackingID, ok := h.deliveryRequest(w, r)
	if !ok {
		return
	}

	data, err := readLimitedBody(r, maxDeliveryBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req failDeliveryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	tracking, err := h.deliveries.Fail(r.Context(), services.FailDeliveryCommand{
		TrackingID: trackingID,
		Reason:     strings.TrimSpace(req.Reason),
		Actor:      actor,
	})
	if err != nil {
		writeDeliveryError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDeliveryPayload(tracking))
}

// ReportLocation stores the driver's current position. Last write wins.
func (h *DeliveryHandlers) ReportLocation(w http.ResponseWriter, r *http.Request) {
	actor, trackingID, ok := h.deliveryRequest(w, r)
	if !ok {
		return
	}
	if h.pings != nil && !h.pings.Allow(actor.ID) {
		httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "location reported too frequently", http.StatusTooManyRequests))
		return
	}

	data, err := readLimitedBody(r, maxDeliveryBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req reportLocationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	err = h.deliveries.UpdateLocation(r.Context(), services.UpdateLocationCommand{
		TrackingID: trackingID,
		Location:   domain.GeoPoint{Lat: req.Lat, Lng: req.Lng},
		Actor:      actor,
	})
	if err != nil {
		writeDeliveryError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeliveryHandlers) deliveryRequest(w http.ResponseWriter, r *http.Request) (domain.Actor, string, bool) {
	if h.deliveries == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "delivery service not configured", http.StatusServiceUnavailable))
		return domain.Actor{}, "", false
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, "", false
	}
	trackingID := strings.TrimSpace(chi.URLParam(r, "trackingID"))
	if trackingID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "tracking id is required", http.StatusBadRequest))
		return domain.Actor{}, "", false
	}
	return actor, trackingID, true
}

func buildProofFromRequest(req deliveryProofRequest) domain.DeliveryProof {
	proof := domain.DeliveryProof{}
	if signature := strings.TrimSpace(req.Signature); signature != "" {
		proof.Signature = &signature
	}
	if photoURL := strings.TrimSpace(req.PhotoURL); photoURL != "" {
		proof.PhotoURL = &photoURL
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		proof.Note = &note
	}
	return proof
}

func buildDeliveryPayload(tracking domain.DeliveryTracking) deliveryPayload {
	payload := deliveryPayload{
		ID:      tracking.ID,
		OrderID: tracking.OrderID,
		Driver: driverPayload{
			ID:     tracking.Driver.ID,
			Name:   tracking.Driver.Name,
			Mobile: tracking.Driver.Mobile,
		},
		Status:           string(tracking.Status),
		EstimatedArrival: formatTimePtr(tracking.EstimatedArrival),
		ActualArrival:    formatTimePtr(tracking.ActualArrival),
		CreatedAt:        formatTime(tracking.CreatedAt),
		UpdatedAt:        formatTime(tracking.UpdatedAt),
	}
	if tracking.CurrentLocation != nil {
		payload.CurrentLocation = &trackedLocationPayload{
			Lat:        tracking.CurrentLocation.Lat,
			Lng:        tracking.CurrentLocation.Lng,
			ReportedAt: formatTime(tracking.CurrentLocation.ReportedAt),
		}
	}
	for _, entry := range tracking.Timeline {
		item := timelineEntryPayload{
			Status:    string(entry.Status),
			Note:      stringPtrValue(entry.Note),
			CreatedAt: formatTime(entry.CreatedAt),
		}
		if entry.Location != nil {
			loc := buildGeoPayload(*entry.Location)
			item.Location = &loc
		}
		payload.Timeline = append(payload.Timeline, item)
	}
	if tracking.Proof != nil {
		payload.Proof = &deliveryProofPayload{
			Signature: stringPtrValue(tracking.Proof.Signature),
			PhotoURL:  stringPtrValue(tracking.Proof.PhotoURL),
			Note:      stringPtrValue(tracking.Proof.Note),
		}
	}
	return payload
}

func writeDeliveryError(r *http.Request, w http.ResponseWriter, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrDeliveryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDeliveryInvalidActor):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_driver", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDeliveryNotFound), errors.Is(err, services.ErrDeliveryUnauthorized):
		// Unauthorized reads report not-found to avoid leaking assignments.
		httpx.WriteError(ctx, w, httpx.NewError("delivery_not_found", "delivery not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDeliveryInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDeliveryConflict):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_conflict", "delivery was modified concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
