package service

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apphttp "github.com/dsphq/dapphub/pkg/app/http"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service *Service
	logger  *zap.Logger
}

// RegisterRoutes registers the aggregation endpoints on the given chi router
func RegisterRoutes(r chi.Router, service *Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Get("/v1/packages", apphttp.HandleError(h.listPackages))
	r.Get("/v1/packages/{provider}/{service}/{packageId}", apphttp.HandleError(h.getPackage))
	r.Get("/v1/providers", apphttp.HandleError(h.listProviders))
	r.Get("/v1/accounts/{account}", apphttp.HandleError(h.getAccount))
	r.Get("/v1/stats", apphttp.HandleError(h.getStats))
	r.Post("/v1/cache/invalidate", h.invalidateCache)
}

func (h *HTTP) listPackages(w http.ResponseWriter, r *http.Request) error {
	defs, err := h.service.GetPackageDefinitions(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, defs)
	return nil
}

func (h *HTTP) getPackage(w http.ResponseWriter, r *http.Request) error {
	def, err := h.service.GetPackageDefinition(r.Context(),
		chi.URLParam(r, "provider"),
		chi.URLParam(r, "service"),
		chi.URLParam(r, "packageId"),
	)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, def)
	return nil
}

func (h *HTTP) listProviders(w http.ResponseWriter, r *http.Request) error {
	providers, err := h.service.GetProviders(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, providers)
	return nil
}

func (h *HTTP) getAccount(w http.ResponseWriter, r *http.Request) error {
	details, err := h.service.GetAccountDetails(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, details)
	return nil
}

func (h *HTTP) getStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, stats)
	return nil
}

func (h *HTTP) invalidateCache(w http.ResponseWriter, _ *http.Request) {
	h.service.InvalidateCache()
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
