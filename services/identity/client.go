// Package identity talks to the remote login endpoint.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
)

// DefaultToken is issued when the endpoint authenticates a user without returning a token.
const DefaultToken = "api-token"

var (
	// ErrNotProvisioned is returned when the endpoint does not exist (HTTP 404).
	ErrNotProvisioned = errors.New("login endpoint not provisioned")
	// ErrUnreachable is returned when the endpoint could not be reached at all.
	ErrUnreachable = errors.New("login endpoint unreachable")
)

// StatusError is a substantive error reported by the endpoint.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

type (
	// User is the user payload returned by the endpoint.
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	}

	LoginResult struct {
		User  User
		Token string
	}

	// Client exchanges credentials with the remote login endpoint.
	Client interface {
		Login(ctx context.Context, username, password string) (LoginResult, error)
	}

	client struct {
		baseURL string
		rest    *rest.Client
	}
)

var _ Client = (*client)(nil)

// NewClient returns nil when baseURL is blank: no remote tier is configured.
func NewClient(baseURL string, timeout time.Duration) Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &client{
		baseURL: baseURL,
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
	}
}

type loginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
	Error string `json:"error"`
}

func (c *client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return LoginResult{}, errors.Wrap(err, "encoding credentials")
	}

	resp, err := c.rest.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.baseURL + "/api/users/login",
		Headers: map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
		Body:    body,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return LoginResult{}, ctxErr
		}
		return LoginResult{}, errors.Wrap(ErrUnreachable, err.Error())
	}

	if resp.StatusCode == http.StatusNotFound {
		return LoginResult{}, ErrNotProvisioned
	}

	var data loginResponse
	decodeErr := json.Unmarshal([]byte(resp.Body), &data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := data.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return LoginResult{}, &StatusError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return LoginResult{}, errors.Wrap(decodeErr, "decoding login response")
	}

	// the user is either nested under "user" or the payload itself
	var usr User
	if data.User != nil {
		usr = *data.User
	} else if err = json.Unmarshal([]byte(resp.Body), &usr); err != nil {
		return LoginResult{}, errors.Wrap(err, "decoding login response")
	}

	token := data.Token
	if token == "" {
		token = DefaultToken
	}
	return LoginResult{User: usr, Token: token}, nil
}
