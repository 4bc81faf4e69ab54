package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/country"
	"github.com/kiranshivaraju/memberbase/pkg/models"
)

// SettingsService reads and updates a tenant's settings.
type SettingsService interface {
	Settings(ctx context.Context, tenantID uuid.UUID) (*models.Settings, error)
	UpdateCountry(ctx context.Context, tenantID uuid.UUID, name string) (*models.Settings, error)
}

type settingsResponse struct {
	*models.Settings
	ISOCode  string `json:"iso_code"`
	DialCode string `json:"dial_code"`
}

func toSettingsResponse(s *models.Settings) settingsResponse {
	resp := settingsResponse{Settings: s}
	if c, ok := country.ByName(s.Country); ok {
		resp.ISOCode = c.ISOCode
		resp.DialCode = c.DialCode
	}
	return resp
}

// NewGetSettingsHandler returns an http.HandlerFunc for GET /{tenant}/settings.
func NewGetSettingsHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, _, ok := caller(w, r)
		if !ok {
			return
		}
		s, err := svc.Settings(r.Context(), t.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, toSettingsResponse(s))
	}
}

// NewUpdateSettingsHandler returns an http.HandlerFunc for PUT /{tenant}/settings.
func NewUpdateSettingsHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, _, ok := caller(w, r)
		if !ok {
			return
		}
		var req struct {
			Country string `json:"country"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		s, err := svc.UpdateCountry(r.Context(), t.ID, req.Country)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, toSettingsResponse(s))
	}
}

// NewCountriesHandler returns an http.HandlerFunc for GET /countries.
func NewCountriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, country.All())
	}
}
