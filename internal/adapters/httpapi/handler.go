// Package httpapi exposes the estate service as a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"estatecore/docs/openapi"
	"estatecore/internal/blob"
	"estatecore/internal/core"
	"estatecore/pkg/domain"

	"github.com/google/uuid"
)

const (
	basePath       = "/api/v1"
	maxBodyBytes   = 64 << 10
	requestIDField = "X-Request-ID"
)

// EstateService is the operation set served by the handler. *core.Service
// implements it.
type EstateService interface {
	AddProperty(ctx context.Context, address string, propertyType domain.PropertyType, description string) (domain.Property, error)
	UpdateProperty(ctx context.Context, id uint64, address string, propertyType domain.PropertyType, description string) (domain.Property, error)
	DeleteProperty(ctx context.Context, id uint64) error
	GetProperty(ctx context.Context, id uint64) (domain.Property, error)
	ListProperties(ctx context.Context) ([]domain.Property, error)

	AddTenant(ctx context.Context, name string) (domain.Tenant, error)
	UpdateTenant(ctx context.Context, id uint64, name string) (domain.Tenant, error)
	DeleteTenant(ctx context.Context, id uint64) error
	GetTenant(ctx context.Context, id uint64) (domain.Tenant, error)
	ListTenants(ctx context.Context) ([]domain.Tenant, error)

	CreateLeaseAgreement(ctx context.Context, terms domain.LeaseTerms) (domain.LeaseAgreement, error)
	UpdateLeaseAgreement(ctx context.Context, id uint64, terms domain.LeaseTerms) (domain.LeaseAgreement, error)
	CancelLeaseAgreement(ctx context.Context, id uint64) error
	GetLeaseAgreement(ctx context.Context, id uint64) (domain.LeaseAgreement, error)
	ListLeaseAgreements(ctx context.Context) ([]domain.LeaseAgreement, error)
}

// BackupManager creates and lists snapshot backups.
type BackupManager interface {
	Create(ctx context.Context) (blob.Info, error)
	List(ctx context.Context) ([]blob.Info, error)
}

// Handler routes /api/v1 requests to the service.
type Handler struct {
	Service EstateService
	Backups BackupManager
	Logger  core.Logger
}

// NewHandler constructs a handler. backups may be nil, in which case the
// backup endpoints answer 404.
func NewHandler(svc EstateService, backups BackupManager, logger core.Logger) *Handler {
	return &Handler{Service: svc, Backups: backups, Logger: logger}
}

type propertyRequest struct {
	Address      string `json:"address"`
	PropertyType string `json:"property_type"`
	Description  string `json:"description"`
}

type tenantRequest struct {
	Name string `json:"name"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "Internal", "estate service not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if !strings.HasPrefix(path, basePath+"/") {
		writeError(w, http.StatusNotFound, "NotFound", "endpoint not found")
		return
	}
	segments := strings.Split(strings.TrimPrefix(path, basePath+"/"), "/")
	switch segments[0] {
	case "properties":
		h.route(w, r, segments, h.properties())
	case "tenants":
		h.route(w, r, segments, h.tenants())
	case "leases":
		h.route(w, r, segments, h.leases())
	case "backups":
		h.handleBackups(w, r, segments)
	case "openapi.yaml":
		serveOpenAPI(w, r)
	default:
		writeError(w, http.StatusNotFound, "NotFound", "endpoint not found")
	}
}

// resource binds the five CRUD verbs of one entity kind.
type resource struct {
	list   func(ctx context.Context) (any, error)
	create func(ctx context.Context, body []byte) (any, error)
	get    func(ctx context.Context, id uint64) (any, error)
	update func(ctx context.Context, id uint64, body []byte) (any, error)
	remove func(ctx context.Context, id uint64) error
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request, segments []string, res resource) {
	switch len(segments) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			out, err := res.list(r.Context())
			h.respond(w, r, http.StatusOK, out, err)
		case http.MethodPost:
			body, ok := h.readBody(w, r)
			if !ok {
				return
			}
			out, err := res.create(r.Context(), body)
			h.respond(w, r, http.StatusCreated, out, err)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 2:
		id, err := strconv.ParseUint(segments[1], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "invalid id "+strconv.Quote(segments[1]))
			return
		}
		switch r.Method {
		case http.MethodGet:
			out, err := res.get(r.Context(), id)
			h.respond(w, r, http.StatusOK, out, err)
		case http.MethodPut:
			body, ok := h.readBody(w, r)
			if !ok {
				return
			}
			out, err := res.update(r.Context(), id, body)
			h.respond(w, r, http.StatusOK, out, err)
		case http.MethodDelete:
			if err := res.remove(r.Context(), id); err != nil {
				h.respond(w, r, 0, nil, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	default:
		writeError(w, http.StatusNotFound, "NotFound", "endpoint not found")
	}
}

func (h *Handler) properties() resource {
	svc := h.Service
	return resource{
		list: func(ctx context.Context) (any, error) {
			items, err := svc.ListProperties(ctx)
			return map[string]any{"properties": nonNil(items)}, err
		},
		create: func(ctx context.Context, body []byte) (any, error) {
			var req propertyRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.AddProperty(ctx, req.Address, domain.PropertyType(req.PropertyType), req.Description)
		},
		get: func(ctx context.Context, id uint64) (any, error) {
			return svc.GetProperty(ctx, id)
		},
		update: func(ctx context.Context, id uint64, body []byte) (any, error) {
			var req propertyRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.UpdateProperty(ctx, id, req.Address, domain.PropertyType(req.PropertyType), req.Description)
		},
		remove: svc.DeleteProperty,
	}
}

func (h *Handler) tenants() resource {
	svc := h.Service
	return resource{
		list: func(ctx context.Context) (any, error) {
			items, err := svc.ListTenants(ctx)
			return map[string]any{"tenants": nonNil(items)}, err
		},
		create: func(ctx context.Context, body []byte) (any, error) {
			var req tenantRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.AddTenant(ctx, req.Name)
		},
		get: func(ctx context.Context, id uint64) (any, error) {
			return svc.GetTenant(ctx, id)
		},
		update: func(ctx context.Context, id uint64, body []byte) (any, error) {
			var req tenantRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.UpdateTenant(ctx, id, req.Name)
		},
		remove: svc.DeleteTenant,
	}
}

func (h *Handler) leases() resource {
	svc := h.Service
	return resource{
		list: func(ctx context.Context) (any, error) {
			items, err := svc.ListLeaseAgreements(ctx)
			return map[string]any{"leases": nonNil(items)}, err
		},
		create: func(ctx context.Context, body []byte) (any, error) {
			var terms domain.LeaseTerms
			if err := decode(body, &terms); err != nil {
				return nil, err
			}
			return svc.CreateLeaseAgreement(ctx, terms)
		},
		get: func(ctx context.Context, id uint64) (any, error) {
			return svc.GetLeaseAgreement(ctx, id)
		},
		update: func(ctx context.Context, id uint64, body []byte) (any, error) {
			var terms domain.LeaseTerms
			if err := decode(body, &terms); err != nil {
				return nil, err
			}
			return svc.UpdateLeaseAgreement(ctx, id, terms)
		},
		remove: svc.CancelLeaseAgreement,
	}
}

func (h *Handler) handleBackups(w http.ResponseWriter, r *http.Request, segments []string) {
	if h.Backups == nil || len(segments) != 1 {
		writeError(w, http.StatusNotFound, "NotFound", "endpoint not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		infos, err := h.Backups.List(r.Context())
		h.respond(w, r, http.StatusOK, map[string]any{"backups": nonNil(infos)}, err)
	case http.MethodPost:
		info, err := h.Backups.Create(r.Context())
		h.respond(w, r, http.StatusCreated, info, err)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := readLimited(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "RecordTooLarge", "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "BadRequest", "read request body: "+err.Error())
		return nil, false
	}
	return body, true
}

// respond writes payload with status, or maps err onto an error response.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err == nil {
		writeJSON(w, status, payload)
		return
	}
	var (
		de       domain.Error
		tooLarge *domain.RecordTooLargeError
		badBody  *decodeError
	)
	switch {
	case errors.As(err, &de) && de.Kind == domain.ErrorKindNotFound:
		writeError(w, http.StatusNotFound, string(de.Kind), de.Msg)
	case errors.As(err, &de):
		writeError(w, http.StatusBadRequest, string(de.Kind), de.Msg)
	case errors.As(err, &badBody):
		writeError(w, http.StatusBadRequest, "BadRequest", badBody.Error())
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "RecordTooLarge", tooLarge.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "Canceled", "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Timeout", "request deadline exceeded")
	default:
		if h.Logger != nil {
			h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", w.Header().Get(requestIDField), "error", err)
		}
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

func serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"kind": kind, "message": message}})
}

// WithRequestID echoes the caller's X-Request-ID or assigns a new one.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDField)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDField, id)
		}
		w.Header().Set(requestIDField, id)
		next.ServeHTTP(w, r)
	})
}
