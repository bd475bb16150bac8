// Package handler exposes guest/host resolution over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"charter/internal/consumer/models"
	"charter/internal/virt"
	"charter/pkg/httputil"
)

// Handler serves the resolver endpoints.
type Handler struct {
	service *virt.Service
	logger  *slog.Logger
}

// New constructs the handler.
func New(service *virt.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the resolver routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/owners/{ownerID}/hosts/{guestID}", h.handleFindHost)
	r.Post("/owners/{ownerID}/guests/map", h.handleMapGuests)
	r.Post("/owners/{ownerID}/hypervisors/map", h.handleMapHypervisors)
	r.Post("/owners/{ownerID}/guests", h.handleGuestsOf)
}

type consumerResponse struct {
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	OwnerID      string    `json:"ownerId"`
	Type         string    `json:"type"`
	HypervisorID string    `json:"hypervisorId,omitempty"`
	GuestIDs     []string  `json:"guestIds,omitempty"`
	LastCheckin  time.Time `json:"lastCheckin"`
	Updated      time.Time `json:"updated"`
}

func toConsumerResponse(c *models.Consumer) consumerResponse {
	guests := make([]string, 0, len(c.GuestIDs))
	for _, g := range c.GuestIDs {
		guests = append(guests, g.GuestID)
	}
	return consumerResponse{
		UUID:         c.UUID,
		Name:         c.Name,
		OwnerID:      c.OwnerID,
		Type:         string(c.Type),
		HypervisorID: c.HypervisorID,
		GuestIDs:     guests,
		LastCheckin:  c.LastCheckin,
		Updated:      c.Updated,
	}
}

func (h *Handler) handleFindHost(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	guestID := chi.URLParam(r, "guestID")

	host, err := h.service.FindHost(r.Context(), ownerID, guestID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "find host failed", "guest", guestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	if host == nil {
		// Absence of a host is a normal answer, not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, toConsumerResponse(host))
}

type mapGuestsRequest struct {
	GuestIDs []string `json:"guestIds"`
}

func (h *Handler) handleMapGuests(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	req, ok := httputil.DecodeJSON[mapGuestsRequest](w, r)
	if !ok {
		return
	}

	hosts, err := h.service.MapGuestsByOwner(r.Context(), ownerID, req.GuestIDs)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "bulk guest map failed", "owner", ownerID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	result := make(map[string]consumerResponse, len(hosts))
	for guest, host := range hosts {
		result[guest] = toConsumerResponse(host)
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

type mapHypervisorsRequest struct {
	HypervisorIDs []string `json:"hypervisorIds"`
}

func (h *Handler) handleMapHypervisors(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	req, ok := httputil.DecodeJSON[mapHypervisorsRequest](w, r)
	if !ok {
		return
	}

	hosts, err := h.service.MapHostsByHypervisorID(r.Context(), ownerID, req.HypervisorIDs)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "hypervisor map failed", "owner", ownerID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	result := make(map[string]consumerResponse, len(hosts))
	for id, host := range hosts {
		result[id] = toConsumerResponse(host)
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

type guestsOfRequest struct {
	UUID     string            `json:"uuid"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Facts    map[string]string `json:"facts"`
	GuestIDs []string          `json:"guestIds"`
	Updated  time.Time         `json:"updated"`
}

func (h *Handler) handleGuestsOf(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	req, ok := httputil.DecodeJSON[guestsOfRequest](w, r)
	if !ok {
		return
	}

	host := &models.Consumer{
		UUID:    req.UUID,
		Name:    req.Name,
		OwnerID: ownerID,
		Type:    models.Type(req.Type),
		Facts:   req.Facts,
		Updated: req.Updated,
	}
	for _, g := range req.GuestIDs {
		host.GuestIDs = append(host.GuestIDs, models.GuestID{GuestID: g})
	}

	guests, err := h.service.GuestsOf(r.Context(), host)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "guests lookup failed", "host", req.UUID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	result := make([]consumerResponse, 0, len(guests))
	for _, g := range guests {
		result = append(result, toConsumerResponse(g))
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}
