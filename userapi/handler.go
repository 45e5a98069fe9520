/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package userapi provides the REST API of the user resolving service.
package userapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-resolvekit/httpserver"
	"github.com/acronis/go-resolvekit/httpserver/middleware"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/resolver"
	"github.com/acronis/go-resolvekit/restapi"
	"github.com/acronis/go-resolvekit/userstore"
)

// ErrorDomain is the domain of errors returned by the API.
const ErrorDomain = "ResolveKit"

// Error codes of the API.
const (
	ErrCodeInvalidID    = "invalidId"
	ErrCodeInvalidUser  = "invalidUser"
	ErrCodeUserNotFound = "userNotFound"
	ErrCodeFetchFailed  = "fetchFailed"
	ErrCodeTimeout      = "gatewayTimeout"
)

// HealthCheckComponentOrigin is the name of the origin store in the health-check response.
const HealthCheckComponentOrigin = "origin"

// UserResolver is the part of resolver.Resolver used by the API.
type UserResolver interface {
	ResolveEntity(ctx context.Context, rawID string, clientKey string) (resolver.Result[userstore.User], error)
	Remember(id int64, user userstore.User) bool
	Delete(id int64) bool
	Clear()
	Stats() resolver.Stats
}

// UserResponse is the body of the successful GET /users/{id} response.
type UserResponse struct {
	Source resolver.Source `json:"source"`
	User   userstore.User  `json:"user"`
}

// CreatedUserResponse is the body of the successful POST /users response.
type CreatedUserResponse struct {
	User userstore.User `json:"user"`
}

// CreateUserRequest is the body of the POST /users request.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CacheResponse is the body of the successful responses of the cache administration endpoints.
type CacheResponse struct {
	OK      bool  `json:"ok"`
	Deleted *bool `json:"deleted,omitempty"`
}

// Handler serves the user and cache endpoints.
type Handler struct {
	resolver UserResolver
	store    userstore.Store
}

// New creates a new Handler.
func New(res UserResolver, store userstore.Store) *Handler {
	return &Handler{resolver: res, store: store}
}

// Routes registers the API routes in the router.
func (h *Handler) Routes(router chi.Router) {
	router.Get("/users/{id}", h.getUser)
	router.Post("/users", h.createUser)
	router.Delete("/cache", h.clearCache)
	router.Delete("/cache/{id}", h.deleteCacheEntry)
	router.Get("/cache-status", h.cacheStatus)
}

// HealthCheck reports whether the origin store is reachable.
func (h *Handler) HealthCheck(ctx context.Context) (httpserver.HealthCheckResult, error) {
	status := httpserver.HealthCheckStatusOK
	if err := h.store.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if logger := middleware.GetLoggerFromContext(ctx); logger != nil {
			logger.Warn("origin store is unreachable", log.Error(err))
		}
		status = httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{HealthCheckComponentOrigin: status}, nil
}

func (h *Handler) getUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContext(ctx)

	clientKey := middleware.GetClientKeyFromContext(ctx)
	if clientKey == "" {
		clientKey = middleware.GetClientIP(r)
	}

	startTime := time.Now()
	result, err := h.resolver.ResolveEntity(ctx, chi.URLParam(r, "id"), clientKey)
	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs("resolve_ms", time.Since(startTime))
		if err == nil {
			lp.ExtendFields(log.String("resolve_source", string(result.Source)))
		}
	}
	if err != nil {
		h.respondResolveError(rw, r, err, logger)
		return
	}
	restapi.RespondJSON(rw, UserResponse{Source: result.Source, User: result.Value}, logger)
}

func (h *Handler) respondResolveError(rw http.ResponseWriter, r *http.Request, err error, logger log.FieldLogger) {
	var rateLimitedErr *resolver.RateLimitedError
	switch {
	case errors.Is(err, resolver.ErrInvalidInput):
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, ErrCodeInvalidID, "User ID must be an integer."), logger)
	case errors.As(err, &rateLimitedErr):
		restapi.RespondTooManyRequests(rw, ErrorDomain, rateLimitedErr.RetryAfter, logger)
	case errors.Is(err, resolver.ErrNotFound) && !errors.Is(err, resolver.ErrFetch):
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(ErrorDomain, ErrCodeUserNotFound, "User not found."), logger)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		rw.WriteHeader(httpserver.StatusClientClosedRequest)
	case errors.Is(err, context.DeadlineExceeded):
		restapi.RespondError(rw, http.StatusGatewayTimeout,
			restapi.NewError(ErrorDomain, ErrCodeTimeout, "Timed out waiting for the origin."), logger)
	default:
		if logger != nil {
			logger.Error("failed to resolve user", log.Error(err))
		}
		restapi.RespondError(rw, http.StatusInternalServerError,
			restapi.NewError(ErrorDomain, ErrCodeFetchFailed, "Failed to fetch user from origin."), logger)
	}
}

func (h *Handler) createUser(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var req CreateUserRequest
	if err := restapi.DecodeRequestJSONStrict(r, &req, true); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}

	user, err := h.store.Create(r.Context(), req.Name, req.Email)
	if err != nil {
		if errors.Is(err, userstore.ErrInvalidUser) {
			restapi.RespondError(rw, http.StatusBadRequest,
				restapi.NewError(ErrorDomain, ErrCodeInvalidUser, "Name and email are required."), logger)
			return
		}
		if logger != nil {
			logger.Error("failed to create user", log.Error(err))
		}
		restapi.RespondInternalError(rw, ErrorDomain, logger)
		return
	}
	h.resolver.Remember(user.ID, user)

	restapi.RespondCodeAndJSON(rw, http.StatusCreated, CreatedUserResponse{User: user}, logger)
}

func (h *Handler) clearCache(rw http.ResponseWriter, r *http.Request) {
	h.resolver.Clear()
	restapi.RespondJSON(rw, CacheResponse{OK: true}, middleware.GetLoggerFromContext(r.Context()))
}

func (h *Handler) deleteCacheEntry(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	id, err := resolver.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, ErrCodeInvalidID, "User ID must be an integer."), logger)
		return
	}
	deleted := h.resolver.Delete(id)
	restapi.RespondJSON(rw, CacheResponse{OK: true, Deleted: &deleted}, logger)
}

func (h *Handler) cacheStatus(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, h.resolver.Stats(), middleware.GetLoggerFromContext(r.Context()))
}
