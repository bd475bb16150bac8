// Package handler exposes certificate issuance and revocation over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"charter/internal/cert"
	cmodels "charter/internal/consumer/models"
	"charter/internal/entitlement/models"
	"charter/pkg/httputil"
)

// Handler serves the issuance endpoints.
type Handler struct {
	service *cert.Service
	logger  *slog.Logger
}

// New constructs the handler.
func New(service *cert.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the issuance routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/entitlements/{entitlementID}/certificates", h.handleIssue)
	r.Delete("/entitlements/{entitlementID}/certificates", h.handleRevoke)
	r.Get("/serials/revoked", h.handleRevokedSerials)
}

type productPayload struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Content    []contentPayload  `json:"content,omitempty"`
}

type contentPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	Vendor  string `json:"vendor"`
	URL     string `json:"url"`
	GpgURL  string `json:"gpgUrl,omitempty"`
	Enabled bool   `json:"enabled"`
}

type subscriptionPayload struct {
	ID             string           `json:"id"`
	Product        *productPayload  `json:"product"`
	Provided       []productPayload `json:"provided,omitempty"`
	Quantity       int64            `json:"quantity"`
	StartDate      time.Time        `json:"startDate"`
	EndDate        time.Time        `json:"endDate"`
	ContractNumber string           `json:"contractNumber,omitempty"`
	AccountNumber  string           `json:"accountNumber,omitempty"`
	OrderNumber    string           `json:"orderNumber,omitempty"`
}

type issueRequest struct {
	Consumer struct {
		UUID    string `json:"uuid"`
		Name    string `json:"name"`
		OwnerID string `json:"ownerId"`
	} `json:"consumer"`
	PoolID       string               `json:"poolId"`
	Quantity     int                  `json:"quantity"`
	Subscription *subscriptionPayload `json:"subscription"`
	EndDate      time.Time            `json:"endDate"`
}

type certificateResponse struct {
	Serial        string    `json:"serial"`
	EntitlementID string    `json:"entitlementId"`
	Key           string    `json:"key"`
	Cert          string    `json:"cert"`
	Created       time.Time `json:"created"`
}

func (p *productPayload) toModel() *models.Product {
	if p == nil {
		return nil
	}
	product := &models.Product{ID: p.ID, Name: p.Name, Attributes: p.Attributes}
	for _, c := range p.Content {
		product.Content = append(product.Content, models.Content{
			ID: c.ID, Name: c.Name, Label: c.Label,
			Vendor: c.Vendor, URL: c.URL, GpgURL: c.GpgURL, Enabled: c.Enabled,
		})
	}
	return product
}

func (p *subscriptionPayload) toModel() *models.Subscription {
	if p == nil {
		return nil
	}
	sub := &models.Subscription{
		ID:             p.ID,
		Product:        p.Product.toModel(),
		Quantity:       p.Quantity,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		ContractNumber: p.ContractNumber,
		AccountNumber:  p.AccountNumber,
		OrderNumber:    p.OrderNumber,
	}
	for i := range p.Provided {
		sub.Provided = append(sub.Provided, p.Provided[i].toModel())
	}
	return sub
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "entitlementID")
	req, ok := httputil.DecodeJSON[issueRequest](w, r)
	if !ok {
		return
	}

	consumer := &cmodels.Consumer{
		UUID:    req.Consumer.UUID,
		Name:    req.Consumer.Name,
		OwnerID: req.Consumer.OwnerID,
	}
	ent := &models.Entitlement{
		ID:           entitlementID,
		ConsumerUUID: req.Consumer.UUID,
		PoolID:       req.PoolID,
		Quantity:     req.Quantity,
	}
	sub := req.Subscription.toModel()
	var product *models.Product
	if sub != nil {
		product = sub.Product
	}

	endDate := req.EndDate
	if endDate.IsZero() && sub != nil {
		endDate = sub.EndDate
	}

	issued, err := h.service.Issue(r.Context(), consumer, ent, sub, product, endDate)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "issuance failed", "entitlement", entitlementID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, certificateResponse{
		Serial:        issued.Serial.String(),
		EntitlementID: issued.EntitlementID,
		Key:           string(issued.KeyPEM),
		Cert:          string(issued.CertPEM),
		Created:       issued.Created,
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	entitlementID := chi.URLParam(r, "entitlementID")

	if err := h.service.Revoke(r.Context(), &models.Entitlement{ID: entitlementID}); err != nil {
		h.logger.ErrorContext(r.Context(), "revocation failed", "entitlement", entitlementID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokedSerials(w http.ResponseWriter, r *http.Request) {
	serials, err := h.service.RevokedSerials(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "revoked serial listing failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	out := make([]string, 0, len(serials))
	for _, s := range serials {
		out = append(out, s.String())
	}
	httputil.RespondJSON(w, http.StatusOK, struct {
		Serials []string `json:"serials"`
	}{Serials: out})
}
