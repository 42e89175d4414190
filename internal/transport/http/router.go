package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	billingapp "github.com/argsms/rangepool/internal/billing/app"
	catalogapp "github.com/argsms/rangepool/internal/catalog/app"
	identityapp "github.com/argsms/rangepool/internal/identity/app"
	pricingapp "github.com/argsms/rangepool/internal/pricing/app"
	reservationapp "github.com/argsms/rangepool/internal/reservation/app"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Engine         *reservationapp.Engine
	Identity       *identityapp.IdentityService
	Ledger         *billingapp.LedgerService
	Resolver       *pricingapp.Resolver
	Catalog        *catalogapp.CatalogService
	AdminJWTSecret string
	Logger         *slog.Logger
}

// NewRouter assembles the chi router: open holder routes, read-only catalog
// and pricing routes, and an admin group behind JWT + capability auth.
func NewRouter(deps RouterDeps) http.Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())

	reservationHandler := NewReservationHandler(deps.Engine, deps.Identity, deps.Ledger, validate, deps.Logger)
	adminHandler := NewAdminHandler(deps.Engine, deps.Identity, deps.Ledger, validate, deps.Logger)
	pricingHandler := NewPricingHandler(deps.Resolver, validate, deps.Logger)
	catalogHandler := NewCatalogHandler(deps.Catalog, validate, deps.Logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		reservationHandler.RegisterRoutes(api)
		pricingHandler.RegisterRoutes(api)
		catalogHandler.RegisterRoutes(api)

		api.Group(func(admin chi.Router) {
			admin.Use(AdminAuth(deps.Identity, deps.AdminJWTSecret, deps.Logger))
			adminHandler.RegisterRoutes(admin)
			pricingHandler.RegisterAdminRoutes(admin)
			catalogHandler.RegisterAdminRoutes(admin)
		})
	})

	return r
}
