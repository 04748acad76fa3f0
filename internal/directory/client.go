package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the REST implementation of every directory collaborator.
// It only carries request/response shapes; authorization decisions stay
// with the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// tokenSource yields the current bearer token; empty means anonymous.
	tokenSource func() string
}

// ClientOption configures Client behavior.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource sets where the bearer token is read from on each call.
func WithTokenSource(fn func() string) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.tokenSource = fn
		}
	}
}

// NewClient constructs a Client for the directory backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		tokenSource: func() string { return "" },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ TokenValidator = (*Client)(nil)
	_ Authenticator  = (*Client)(nil)
	_ Catalog        = (*Client)(nil)
	_ Users          = (*Client)(nil)
	_ Roles          = (*Client)(nil)
	_ Passwords      = (*Client)(nil)
)

func (c *Client) ValidateToken(ctx context.Context, token string) (bool, error) {
	var resp struct {
		Success bool `json:"success"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/token/validate", map[string]string{"token": token}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var wire struct {
		Token     string          `json:"token"`
		UserData  Profile         `json:"user_data"`
		Roles     json.RawMessage `json:"roles"`
		ExpiresAt time.Time       `json:"expires_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/login", creds, &wire); err != nil {
		return LoginResult{}, err
	}
	roles, err := NormalizeRoles(wire.Roles)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:       wire.Token,
		Profile:     wire.UserData,
		ActiveRoles: roles,
		ExpiresAt:   wire.ExpiresAt,
	}, nil
}

func (c *Client) GetRoles(ctx context.Context) ([]RoleAssignment, error) {
	var wire struct {
		Roles json.RawMessage `json:"roles"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/roles", nil, &wire); err != nil {
		return nil, err
	}
	return NormalizeRoles(wire.Roles)
}

func (c *Client) GetRolesByOrganization(ctx context.Context, org string) ([]RoleAssignment, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, fmt.Errorf("%w: organization is required", ErrInvalidInput)
	}
	var wire struct {
		Roles json.RawMessage `json:"roles"`
	}
	path := "/v1/roles?organization=" + url.QueryEscape(org)
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	return NormalizeRoles(wire.Roles)
}

func (c *Client) GetOrganizations(ctx context.Context) ([]string, error) {
	body, err := c.doRaw(ctx, http.MethodGet, "/v1/organization_units/", nil)
	if err != nil {
		return nil, err
	}
	return NormalizeOrganizations(body)
}

func (c *Client) CreateUser(ctx context.Context, u User) (User, error) {
	var created User
	if err := c.do(ctx, http.MethodPost, "/v1/user", u, &created); err != nil {
		return User{}, err
	}
	return created, nil
}

func (c *Client) UpdateUser(ctx context.Context, mail string, u User) (User, error) {
	mail = strings.TrimSpace(mail)
	if mail == "" {
		return User{}, fmt.Errorf("%w: mail is required", ErrInvalidInput)
	}
	var updated User
	if err := c.do(ctx, http.MethodPut, "/v1/user/"+url.PathEscape(mail), u, &updated); err != nil {
		return User{}, err
	}
	return updated, nil
}

func (c *Client) DeleteUser(ctx context.Context, mail string) error {
	mail = strings.TrimSpace(mail)
	if mail == "" {
		return fmt.Errorf("%w: mail is required", ErrInvalidInput)
	}
	return c.do(ctx, http.MethodDelete, "/v1/user/"+url.PathEscape(mail), nil, nil)
}

func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) error {
	if strings.TrimSpace(change.Mail) == "" {
		return fmt.Errorf("%w: mail is required", ErrInvalidInput)
	}
	return c.do(ctx, http.MethodPost, "/v1/user/password", change, nil)
}

func (c *Client) CreateRole(ctx context.Context, r Role) (Role, error) {
	var created Role
	if err := c.do(ctx, http.MethodPost, "/v1/role", r, &created); err != nil {
		return Role{}, err
	}
	return created, nil
}

func (c *Client) UpdateRole(ctx context.Context, name string, r Role) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	var updated Role
	if err := c.do(ctx, http.MethodPut, "/v1/role/"+url.PathEscape(name), r, &updated); err != nil {
		return Role{}, err
	}
	return updated, nil
}

func (c *Client) DeleteRole(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return c.do(ctx, http.MethodDelete, "/v1/role/"+url.PathEscape(name), nil, nil)
}

// do performs one JSON round trip; out may be nil when the body is ignored.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	body, err := c.doRaw(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("directory: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("directory: encode %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokenSource(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(string(body)))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("directory: %s %s: status %d", method, path, resp.StatusCode)
	}
	return body, nil
}
