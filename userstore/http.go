/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package userstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/acronis/go-resolvekit/httpclient"
	"github.com/acronis/go-resolvekit/log"
	"github.com/acronis/go-resolvekit/restapi"
)

// HTTPRequestType is the request type of outgoing requests in httpclient logs and metrics.
const HTTPRequestType = "origin"

// HTTPStore is a Store backed by a remote service exposing the users API
// (GET /users/{id}, POST /users and GET /healthz), e.g. another resolverd instance.
type HTTPStore struct {
	client  *http.Client
	baseURL *url.URL
	logger  log.FieldLogger
}

var _ Store = (*HTTPStore)(nil)

// HTTPStoreOpts represents options for HTTPStore.
type HTTPStoreOpts struct {
	Logger log.FieldLogger
}

type httpUserResponse struct {
	User User `json:"user"`
}

type httpCreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewHTTPStore creates a new HTTPStore that sends requests with the given client.
func NewHTTPStore(client *http.Client, baseURL string, opts HTTPStoreOpts) (*HTTPStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must have http or https scheme", baseURL)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &HTTPStore{client: client, baseURL: u, logger: opts.Logger}, nil
}

// Get requests the user from the remote service. 404 is reported as ErrUserNotFound.
func (s *HTTPStore) Get(ctx context.Context, id int64) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("users", strconv.FormatInt(id, 10)), nil)
	if err != nil {
		return User{}, err
	}
	var resp httpUserResponse
	if err = restapi.DoRequestAndUnmarshalJSON(s.client, req, &resp, s.logger); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return resp.User, nil
}

// Create creates the user in the remote service. 400 is reported as ErrInvalidUser.
func (s *HTTPStore) Create(ctx context.Context, name, email string) (User, error) {
	name, email, err := validateNewUser(name, email)
	if err != nil {
		return User{}, err
	}
	req, err := restapi.NewJSONRequest(http.MethodPost, s.endpoint("users"), httpCreateUserRequest{Name: name, Email: email})
	if err != nil {
		return User{}, err
	}
	var resp httpUserResponse
	if err = restapi.DoRequestAndUnmarshalJSON(s.client, req.WithContext(ctx), &resp, s.logger); err != nil {
		if statusCode(err) == http.StatusBadRequest {
			return User{}, fmt.Errorf("%w: rejected by origin: %s", ErrInvalidUser, err.Error())
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return resp.User, nil
}

// Ping checks the health endpoint of the remote service.
func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("healthz"), nil)
	if err != nil {
		return err
	}
	resp, err := restapi.DoRequest(s.client, req, s.logger)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("origin health check returned %d status code", resp.StatusCode)
	}
	return nil
}

// Close closes idle connections of the client.
func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPStore) endpoint(elem ...string) string {
	return s.baseURL.JoinPath(elem...).String()
}

func statusCode(err error) int {
	var clientErr *restapi.ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

// OpenHTTPStore creates an HTTPStore with an HTTP client built from the configuration.
func OpenHTTPStore(cfg *HTTPConfig, opts HTTPStoreOpts, metrics *httpclient.PrometheusMetrics) (*HTTPStore, error) {
	client, err := httpclient.New(cfg.Client, httpclient.Opts{
		RequestType: HTTPRequestType,
		Logger:      opts.Logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create HTTP client: %w", err)
	}
	return NewHTTPStore(client, cfg.BaseURL, opts)
}
