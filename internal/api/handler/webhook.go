package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/cache"
	"github.com/kiranshivaraju/memberbase/internal/identity"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/users"
	"github.com/rs/zerolog/hlog"
)

// WebhookVerifier authenticates a webhook delivery.
type WebhookVerifier interface {
	Verify(h http.Header, body []byte) error
}

// Provisioner creates internal users from identity events.
type Provisioner interface {
	ProvisionFromIdentity(ctx context.Context, ev *identity.UserEvent) (*users.Provisioned, error)
}

type webhookResponse struct {
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
}

// NewIdentityWebhookHandler returns an http.HandlerFunc for
// POST /webhooks/identity. Deliveries the service cannot act on are
// acknowledged so the provider stops retrying; transient failures return 500
// and release the delivery claim so the retry is processed.
func NewIdentityWebhookHandler(v WebhookVerifier, c cache.Cache, p Provisioner, dedupeTTL time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read body", nil)
			return
		}
		if err := v.Verify(r.Header, body); err != nil {
			log.Warn().Err(err).Msg("webhook rejected")
			response.Error(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature", nil)
			return
		}

		ev, err := identity.ParseUserEvent(body)
		switch {
		case errors.Is(err, identity.ErrUnsupportedEvent):
			response.JSON(w, webhookResponse{Status: "ignored"})
			return
		case err != nil:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Malformed event payload", nil)
			return
		}

		key := cache.WebhookDeliveryKey(r.Header.Get(identity.HeaderID))
		claimed, err := c.Claim(r.Context(), key, dedupeTTL)
		if err != nil {
			// The store's unique keys still make provisioning idempotent.
			log.Warn().Err(err).Msg("webhook dedupe unavailable")
			claimed = true
		}
		if !claimed {
			response.JSON(w, webhookResponse{Status: "duplicate"})
			return
		}

		result, err := p.ProvisionFromIdentity(r.Context(), ev)
		switch {
		case errors.Is(err, users.ErrNoTenant), errors.Is(err, tenant.ErrInvalidSlug):
			log.Warn().Str("external_id", ev.ExternalID).Str("tenant_hint", ev.TenantHint).Msg("identity event without usable tenant")
			response.JSON(w, webhookResponse{Status: "ignored"})
			return
		case errors.Is(err, users.ErrTenantClaimed):
			log.Warn().Str("external_id", ev.ExternalID).Str("tenant_hint", ev.TenantHint).Msg("self-signup for existing tenant refused")
			response.JSON(w, webhookResponse{Status: "rejected"})
			return
		case errors.Is(err, users.ErrEmailTaken):
			log.Warn().Str("external_id", ev.ExternalID).Msg("identity email already used in tenant")
			response.JSON(w, webhookResponse{Status: "conflict"})
			return
		case err != nil:
			if rerr := c.Release(context.WithoutCancel(r.Context()), key); rerr != nil {
				log.Warn().Err(rerr).Msg("release webhook claim")
			}
			writeError(w, r, err)
			return
		}

		status := "exists"
		switch {
		case result.Created:
			status = "created"
		case result.Linked:
			status = "linked"
		}
		response.JSON(w, webhookResponse{Status: status, UserID: result.User.ID.String()})
	}
}
