package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jobrunner/tessera/internal/application"
	"github.com/jobrunner/tessera/internal/domain"
)

// handleGroups resolves the raster groups of a dataset for a query geometry.
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body groupsRequestBody
	if err := s.decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := body.toDomain(name)
	if err != nil {
		s.handleResolveError(w, err)
		return
	}

	ctx, cancel := s.resolveContext(r)
	defer cancel()

	resp, err := s.resolver.FindGroups(ctx, req)
	if err != nil {
		s.handleResolveError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newGroupsResponseBody(resp))
}

// handleSubset trims one geolocation array to a region.
func (s *Server) handleSubset(w http.ResponseWriter, r *http.Request) {
	var body subsetRequestBody
	if err := s.decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := body.toDomain(nil, s.opts.MaxMaskCells)
	if err != nil {
		s.handleResolveError(w, err)
		return
	}

	ctx, cancel := s.resolveContext(r)
	defer cancel()

	resp, err := s.resolver.Subset(ctx, req)
	if err != nil {
		s.handleResolveError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newSubsetResponseBody(resp))
}

// handleSubsetBeams trims several independent arrays in one request.
func (s *Server) handleSubsetBeams(w http.ResponseWriter, r *http.Request) {
	var body subsetBeamsRequestBody
	if err := s.decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(body.Beams) == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "at least one beam is required")
		return
	}

	reqs := make([]domain.SubsetRequest, len(body.Beams))
	for i := range body.Beams {
		req, err := body.Beams[i].toDomain(body.Region, s.opts.MaxMaskCells)
		if err != nil {
			s.handleResolveError(w, fmt.Errorf("beams[%d]: %w", i, err))
			return
		}
		reqs[i] = req
	}

	ctx, cancel := s.resolveContext(r)
	defer cancel()

	resps, err := s.resolver.SubsetBeams(ctx, reqs)
	if err != nil {
		s.handleResolveError(w, err)
		return
	}

	results := make([]subsetResponseBody, len(resps))
	for i := range resps {
		results[i] = newSubsetResponseBody(&resps[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"beams": results,
		"count": len(results),
	})
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]any{
		"status":          boolToStatus(details.Healthy),
		"ready":           details.Ready,
		"datasets":        details.Datasets,
		"catalogs_cached": details.CatalogsCached,
		"components":      details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListDatasets returns all registered dataset profiles.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	profiles := s.datasets.ListDatasets(r.Context())

	datasets := make([]datasetBody, len(profiles))
	for i := range profiles {
		datasets[i] = newDatasetBody(&profiles[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

// handleGetDataset returns one dataset profile.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	profile, err := s.datasets.GetDataset(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.handleResolveError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newDatasetBody(profile))
}

// handleRefresh drops cached catalogs and reloads the warmable ones.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.opts.Refresher.TriggerRefresh(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("refresh failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal", "Refresh failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal", "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// handleSwaggerUI serves a Swagger UI page for /openapi.json.
func (s *Server) handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(swaggerUIPage))
}

// resolveContext applies the configured per-request deadline.
func (s *Server) resolveContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.ResolveTimeout > 0 {
		return context.WithTimeout(r.Context(), s.opts.ResolveTimeout)
	}
	return context.WithCancel(r.Context())
}

// decodeBody decodes a JSON request body, bounded by the configured size.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// handleResolveError maps resolution errors onto HTTP status codes.
func (s *Server) handleResolveError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("resolution failed", "error", err, "status", status)
		s.writeError(w, status, code, http.StatusText(status))
		return
	}
	s.writeError(w, status, code, err.Error())
}

// errorStatus returns the HTTP status and error code for err. Catalog
// failures are checked before the generic unavailable class they wrap.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrDatasetNotFound):
		return http.StatusNotFound, "dataset_not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrMergeFailed):
		return http.StatusBadGateway, "catalog_merge_failed"
	case errors.Is(err, domain.ErrCatalogOpen):
		return http.StatusBadGateway, "catalog_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "canceled"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"code":    code,
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>tessera API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = () => {
      window.ui = SwaggerUIBundle({ url: "/openapi.json", dom_id: "#swagger-ui" });
    };
  </script>
</body>
</html>
`
