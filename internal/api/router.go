package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/memberbase/internal/api/middleware"
	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/rbac"
	"github.com/rs/zerolog"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger  zerolog.Logger
	Auth    *mw.Auth
	Tenants mw.TenantResolver
	Members mw.MemberLookup

	HealthHandler    http.HandlerFunc
	CountriesHandler http.HandlerFunc
	WebhookHandler   http.HandlerFunc

	ValidatePhone   http.HandlerFunc
	RegisterHandler http.HandlerFunc

	MeHandler       http.HandlerFunc
	ListCustomers   http.HandlerFunc
	ExportCustomers http.HandlerFunc
	CreateCustomer  http.HandlerFunc
	GetCustomer     http.HandlerFunc
	UpdateCustomer  http.HandlerFunc
	DeleteCustomer  http.HandlerFunc

	GetSettings    http.HandlerFunc
	UpdateSettings http.HandlerFunc

	ListUsers  http.HandlerFunc
	InviteUser http.HandlerFunc
	ChangeRole http.HandlerFunc
	RemoveUser http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger(deps.Logger))
	r.Use(mw.Recovery)

	// Public
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/countries", orNotImplemented(deps.CountriesHandler))
	r.Post("/webhooks/identity", orNotImplemented(deps.WebhookHandler))

	r.Route("/{"+mw.TenantParam+"}", func(r chi.Router) {
		// Public registration; the tenant may not exist yet.
		r.Post("/customers/validate-phone", orNotImplemented(deps.ValidatePhone))
		r.Post("/customers/register", orNotImplemented(deps.RegisterHandler))

		// Dashboard
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)
			r.Use(mw.Tenant(deps.Tenants))
			r.Use(mw.Membership(deps.Members))

			r.Get("/me", orNotImplemented(deps.MeHandler))

			r.With(mw.RequireCapability(rbac.CapViewCustomer)).Get("/customers", orNotImplemented(deps.ListCustomers))
			r.With(mw.RequireCapability(rbac.CapViewCustomer)).Get("/customers/export", orNotImplemented(deps.ExportCustomers))
			r.With(mw.RequireCapability(rbac.CapCreateCustomer)).Post("/customers/create", orNotImplemented(deps.CreateCustomer))
			r.With(mw.RequireCapability(rbac.CapViewCustomer)).Get("/customers/{id}", orNotImplemented(deps.GetCustomer))
			r.With(mw.RequireCapability(rbac.CapEditCustomer)).Put("/customers/{id}", orNotImplemented(deps.UpdateCustomer))
			r.With(mw.RequireCapability(rbac.CapDeleteCustomer)).Delete("/customers/{id}", orNotImplemented(deps.DeleteCustomer))

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireCapability(rbac.CapManageSettings))

				r.Get("/settings", orNotImplemented(deps.GetSettings))
				r.Put("/settings", orNotImplemented(deps.UpdateSettings))
			})
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireCapability(rbac.CapManageUsers))

				r.Get("/users", orNotImplemented(deps.ListUsers))
				r.Post("/users", orNotImplemented(deps.InviteUser))
				r.Put("/users/{id}/role", orNotImplemented(deps.ChangeRole))
				r.Delete("/users/{id}", orNotImplemented(deps.RemoveUser))
			})
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
