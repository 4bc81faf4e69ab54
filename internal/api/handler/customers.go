package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/memberbase/internal/api/middleware"
	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/customer"
	"github.com/kiranshivaraju/memberbase/internal/export"
	"github.com/kiranshivaraju/memberbase/internal/phone"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/kiranshivaraju/memberbase/pkg/models"
	"github.com/rs/zerolog/hlog"
)

// CustomerService defines the interface the customer handlers depend on.
type CustomerService interface {
	ValidatePhone(ctx context.Context, t *models.Tenant, input, isoCode string, excludeID *uuid.UUID) (customer.PhoneCheck, error)
	Register(ctx context.Context, slug string, in validate.CustomerInput) (*customer.Registration, error)
	Create(ctx context.Context, t *models.Tenant, actor models.Actor, in validate.CustomerInput) (*models.Customer, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error)
	List(ctx context.Context, filter store.CustomerFilter) (*customer.Page, error)
	Update(ctx context.Context, t *models.Tenant, actor models.Actor, id uuid.UUID, in validate.CustomerInput) (*models.Customer, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	Export(ctx context.Context, tenantID uuid.UUID) ([]byte, error)
}

type customerResponse struct {
	*models.Customer
	BirthDate    string `json:"birth_date"`
	PhoneDisplay string `json:"phone_display"`
}

func toCustomerResponse(c *models.Customer) customerResponse {
	return customerResponse{
		Customer:     c,
		BirthDate:    c.BirthDate.Format(validate.DateLayout),
		PhoneDisplay: phone.Display(c.Phone, phone.National),
	}
}

type registrationResponse struct {
	Customer      customerResponse `json:"customer"`
	Tenant        *models.Tenant   `json:"tenant"`
	TenantCreated bool             `json:"tenant_created"`
}

// NewValidatePhoneHandler returns an http.HandlerFunc for
// POST /{tenant}/customers/validate-phone. The tenant need not exist yet.
func NewValidatePhoneHandler(svc CustomerService, tenants mw.TenantResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Phone      string `json:"phone"`
			CustomerID string `json:"customer_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		var excludeID *uuid.UUID
		if req.CustomerID != "" {
			id, err := uuid.Parse(req.CustomerID)
			if err != nil {
				writeError(w, r, validate.Single("customer_id", "must be a valid id"))
				return
			}
			excludeID = &id
		}

		t, err := tenants.Resolve(r.Context(), chi.URLParam(r, mw.TenantParam))
		if errors.Is(err, store.ErrNotFound) {
			t, err = nil, nil
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		check, err := svc.ValidatePhone(r.Context(), t, req.Phone, tenant.CountryOf(t).ISOCode, excludeID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, check)
	}
}

// NewRegisterHandler returns an http.HandlerFunc for
// POST /{tenant}/customers/register.
func NewRegisterHandler(svc CustomerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in validate.CustomerInput
		if !decodeJSON(w, r, &in) {
			return
		}

		reg, err := svc.Register(r.Context(), chi.URLParam(r, mw.TenantParam), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, registrationResponse{
			Customer:      toCustomerResponse(reg.Customer),
			Tenant:        reg.Tenant,
			TenantCreated: reg.TenantCreated,
		})
	}
}

// NewListCustomersHandler returns an http.HandlerFunc for GET /{tenant}/customers.
func NewListCustomersHandler(svc CustomerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, _, ok := caller(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))

		result, err := svc.List(r.Context(), store.CustomerFilter{
			TenantID: t.ID,
			Search:   q.Get("search"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		items := make([]customerResponse, 0, len(result.Customers))
		for _, c := range result.Customers {
			items = append(items, toCustomerResponse(c))
		}
		response.Collection(w, items, response.NewPaginationMeta(result.Page, result.Limit, result.Total))
	}
}

// NewExportCustomersHandler returns an http.HandlerFunc for
// GET /{tenant}/customers/export.
func NewExportCustomersHandler(svc CustomerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, _, ok := caller(w, r)
		if !ok {
			return
		}

		data, err := svc.Export(r.Context(), t.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		filename := fmt.Sprintf("%s-customers-%s.xlsx", t.Slug, time.Now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("tenant", t.Slug).Msg("export write failed")
		}
	}
}

// NewCreateCustomerHandler returns an http.HandlerFunc for
// POST /{tenant}/customers/create.
func NewCreateCustomerHandler(svc CustomerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, member, ok := caller(w, r)
		if !ok {
			return
		}
		var in validate.CustomerInput
		if !decodeJSON(w, r, &in) {
			return
		}

		c, err := svc.Create(r.Context(), t, models.UserActor(member.ID), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, toCustomerResponse(c))
	}
}

// NewGetCustomerHandler returns an http.HandlerFunc for GET /{tenant}/customers/{id}.
func NewGetCustomerHandler(svc CustomerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, _, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		c, err := svc.Get(r.Context(), t.ID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, toCustomerResponse(c))
	}
}

// NewUpdateCustomerHandler returns an http.HandlerFunc for PUT /{tenant}/customers/{id}.
func NewUpdateCustomerHandler(svc CustomerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, member, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in validate.CustomerInput
		if !decodeJSON(w, r, &in) {
			return
		}

		c, err := svc.Update(r.Context(), t, models.UserActor(member.ID), id, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, toCustomerResponse(c))
	}
}

// NewDeleteCustomerHandler returns an http.HandlerFunc for DELETE /{tenant}/customers/{id}.
func NewDeleteCustomerHandler(svc CustomerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, _, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), t.ID, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.OK(w)
	}
}

// pathID parses the {id} parameter. A malformed id cannot name a record, so
// it is reported as not found.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return uuid.Nil, false
	}
	return id, true
}
