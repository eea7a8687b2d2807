package notifications

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrRateLimited, Status: http.StatusTooManyRequests, Message: "too many notifications for recipient"},
	{Error: ErrNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrInvalidRequest, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler creates a new notifications handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.CreateNotification)
		r.Get("/{id}", h.GetNotification)
		r.Get("/{id}/status", h.GetDeliveryStatus)
		r.Post("/{id}/redeliver", h.Redeliver)
	})
}

// DeliveryStatusResponse is the body of the status endpoint.
type DeliveryStatusResponse struct {
	NotificationID string                `json:"notification_id"`
	Status         domain.DeliveryStatus `json:"status"`
}

// CreateNotification handles POST /notifications.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	prefs := h.dispatcher.Preferences(r.Context(), req.RecipientID)

	notification, err := h.dispatcher.Create(r.Context(), req, prefs)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			httputil.ValidationError(w, validationErrors)
			return
		}
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, notification)
}

// GetNotification handles GET /notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	notification, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, notification)
}

// GetDeliveryStatus handles GET /notifications/{id}/status.
func (h *Handler) GetDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.dispatcher.GetDeliveryStatus(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, DeliveryStatusResponse{NotificationID: id, Status: status})
}

// Redeliver handles POST /notifications/{id}/redeliver.
func (h *Handler) Redeliver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	notification, err := h.dispatcher.Redeliver(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, notification)
}
