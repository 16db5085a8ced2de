package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"stackctl/internal/logging"
)

// Resource keys used for caching and invalidation.
const (
	KeyBusinessUnits = "business-units"
	KeyFunctions     = "functions"
	KeyFiles         = "files"
	KeyMe            = "users/me"
)

// Page is a list response.
type Page[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

// ListOptions pages list queries. Zero Limit uses the server default.
type ListOptions struct {
	Skip  int
	Limit int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Skip > 0 {
		v.Set("skip", strconv.Itoa(o.Skip))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	return v
}

// Message is the body of delete responses.
type Message struct {
	Message string `json:"message"`
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// User is the authenticated user.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	FullName       *string    `json:"full_name"`
	IsActive       bool       `json:"is_active"`
	IsSuperuser    bool       `json:"is_superuser"`
	BusinessUnitID *uuid.UUID `json:"business_unit_id"`
	FunctionID     *uuid.UUID `json:"function_id"`
	CreatedAt      *time.Time `json:"created_at"`
}

// BusinessUnit is an organizational unit.
type BusinessUnit struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Code        string     `json:"code"`
	Description *string    `json:"description"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   *time.Time `json:"created_at"`
}

// BusinessUnitCreate is the body of a business unit create.
type BusinessUnitCreate struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description *string `json:"description,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// BusinessUnitUpdate is a partial update; nil fields are left unchanged.
type BusinessUnitUpdate struct {
	Name        *string `json:"name,omitempty"`
	Code        *string `json:"code,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// Function is a function within a business unit.
type Function struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Code           string     `json:"code"`
	Description    *string    `json:"description"`
	IsActive       bool       `json:"is_active"`
	BusinessUnitID uuid.UUID  `json:"business_unit_id"`
	CreatedAt      *time.Time `json:"created_at"`
}

// FunctionCreate is the body of a function create.
type FunctionCreate struct {
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	Description    *string   `json:"description,omitempty"`
	IsActive       bool      `json:"is_active"`
	BusinessUnitID uuid.UUID `json:"business_unit_id"`
}

// FunctionUpdate is a partial update; nil fields are left unchanged.
type FunctionUpdate struct {
	Name           *string    `json:"name,omitempty"`
	Code           *string    `json:"code,omitempty"`
	Description    *string    `json:"description,omitempty"`
	IsActive       *bool      `json:"is_active,omitempty"`
	BusinessUnitID *uuid.UUID `json:"business_unit_id,omitempty"`
}

// FunctionFilter narrows a function listing.
type FunctionFilter struct {
	ListOptions
	BusinessUnitID *uuid.UUID
}

// File is stored file metadata.
type File struct {
	ID                    uuid.UUID  `json:"id"`
	Filename              string     `json:"filename"`
	OriginalFilename      string     `json:"original_filename"`
	ContentType           string     `json:"content_type"`
	FileSize              int64      `json:"file_size"`
	ResponsibleFunctionID *uuid.UUID `json:"responsible_function_id"`
	OwnerID               uuid.UUID  `json:"owner_id"`
	CreatedAt             *time.Time `json:"created_at"`
}

// FileURL is a presigned download URL.
type FileURL struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// cacheKey renders a resource key with its query.
func cacheKey(resource string, q url.Values) string {
	if len(q) == 0 {
		return resource
	}
	return resource + "?" + q.Encode()
}

// Login exchanges credentials for a token and stores it in the session.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	tok, err := mutate[Token](ctx, c, request{method: http.MethodPost, path: "/login/access-token", form: form, public: true})
	if err != nil {
		return nil, err
	}
	if err := c.session.SetToken(tok.AccessToken); err != nil {
		return nil, err
	}
	c.cache.Clear()
	logging.API("logged in as %s", username)
	return &tok, nil
}

// Logout forgets the session and every cached query.
func (c *Client) Logout() error {
	c.cache.Clear()
	return c.session.Clear()
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	u, err := query[User](ctx, c, KeyMe, request{method: http.MethodGet, path: "/users/me"})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListBusinessUnits lists business units.
func (c *Client) ListBusinessUnits(ctx context.Context, opts ListOptions) (Page[BusinessUnit], error) {
	q := opts.values()
	return query[Page[BusinessUnit]](ctx, c, cacheKey(KeyBusinessUnits, q),
		request{method: http.MethodGet, path: "/business-units/", query: q})
}

// GetBusinessUnit fetches one business unit.
func (c *Client) GetBusinessUnit(ctx context.Context, id uuid.UUID) (*BusinessUnit, error) {
	bu, err := query[BusinessUnit](ctx, c, KeyBusinessUnits+"/"+id.String(),
		request{method: http.MethodGet, path: "/business-units/" + id.String()})
	if err != nil {
		return nil, err
	}
	return &bu, nil
}

// CreateBusinessUnit creates a business unit.
func (c *Client) CreateBusinessUnit(ctx context.Context, in BusinessUnitCreate) (*BusinessUnit, error) {
	bu, err := mutate[BusinessUnit](ctx, c,
		request{method: http.MethodPost, path: "/business-units/", json: in}, KeyBusinessUnits)
	if err != nil {
		return nil, err
	}
	return &bu, nil
}

// UpdateBusinessUnit applies a partial update.
func (c *Client) UpdateBusinessUnit(ctx context.Context, id uuid.UUID, in BusinessUnitUpdate) (*BusinessUnit, error) {
	bu, err := mutate[BusinessUnit](ctx, c,
		request{method: http.MethodPatch, path: "/business-units/" + id.String(), json: in}, KeyBusinessUnits)
	if err != nil {
		return nil, err
	}
	return &bu, nil
}

// DeleteBusinessUnit deletes a business unit.
func (c *Client) DeleteBusinessUnit(ctx context.Context, id uuid.UUID) (string, error) {
	msg, err := mutate[Message](ctx, c,
		request{method: http.MethodDelete, path: "/business-units/" + id.String()}, KeyBusinessUnits, KeyFunctions)
	return msg.Message, err
}

// ListFunctions lists functions, optionally within one business unit.
func (c *Client) ListFunctions(ctx context.Context, f FunctionFilter) (Page[Function], error) {
	q := f.values()
	if f.BusinessUnitID != nil {
		q.Set("business_unit_id", f.BusinessUnitID.String())
	}
	return query[Page[Function]](ctx, c, cacheKey(KeyFunctions, q),
		request{method: http.MethodGet, path: "/functions/", query: q})
}

// GetFunction fetches one function.
func (c *Client) GetFunction(ctx context.Context, id uuid.UUID) (*Function, error) {
	fn, err := query[Function](ctx, c, KeyFunctions+"/"+id.String(),
		request{method: http.MethodGet, path: "/functions/" + id.String()})
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

// CreateFunction creates a function.
func (c *Client) CreateFunction(ctx context.Context, in FunctionCreate) (*Function, error) {
	fn, err := mutate[Function](ctx, c,
		request{method: http.MethodPost, path: "/functions/", json: in}, KeyFunctions)
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

// UpdateFunction applies a partial update.
func (c *Client) UpdateFunction(ctx context.Context, id uuid.UUID, in FunctionUpdate) (*Function, error) {
	fn, err := mutate[Function](ctx, c,
		request{method: http.MethodPatch, path: "/functions/" + id.String(), json: in}, KeyFunctions)
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

// DeleteFunction deletes a function.
func (c *Client) DeleteFunction(ctx context.Context, id uuid.UUID) (string, error) {
	msg, err := mutate[Message](ctx, c,
		request{method: http.MethodDelete, path: "/functions/" + id.String()}, KeyFunctions)
	return msg.Message, err
}
