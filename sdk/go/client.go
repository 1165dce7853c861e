package orgforgesdk

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

// Client is a minimal Orgforge HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActingRole is sent as X-Acting-Role on every request. A user holding
	// several roles picks one per client.
	ActingRole string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Company mirrors the API company model.
type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// Project mirrors the API project model.
type Project struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Step mirrors one step record.
type Step struct {
	ProjectID   string  `json:"project_id"`
	Step        string  `json:"step"`
	Status      string  `json:"status"`
	PayloadJSON *string `json:"payload_json,omitempty"`
	SubmittedAt *string `json:"submitted_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	UpdatedAt   string  `json:"updated_at"`
}

// Invitation mirrors an invitation.
type Invitation struct {
	Token     string `json:"token"`
	CompanyID string `json:"company_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

// Recommendation is one ranked option.
type Recommendation struct {
	Option  string   `json:"option"`
	Weight  int      `json:"weight"`
	Reasons []string `json:"reasons,omitempty"`
}

// RecommendationSet bundles the three rankings.
type RecommendationSet struct {
	Structures             []Recommendation `json:"structures"`
	PerformanceMethods     []Recommendation `json:"performance_methods"`
	CompensationStructures []Recommendation `json:"compensation_structures"`
}

// StepProgress is one progress row.
type StepProgress struct {
	Step       string   `json:"step"`
	Status     string   `json:"status"`
	Unlocked   bool     `json:"unlocked"`
	Operations []string `json:"operations,omitempty"`
}

// Progress is the aggregate project view.
type Progress struct {
	ProjectID string         `json:"project_id"`
	CompanyID string         `json:"company_id"`
	Status    string         `json:"status"`
	Steps     []StepProgress `json:"steps"`
	Done      int            `json:"done"`
	Total     int            `json:"total"`
}

// Event is an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	CompanyID  string `json:"company_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCompany registers a company.
func (c *Client) CreateCompany(ctx context.Context, name string) (Company, error) {
	var resp Company
	err := c.do(ctx, http.MethodPost, "v0/companies", map[string]any{"name": name}, &resp)
	return resp, err
}

// Invite issues an invitation for a ceo or consultant.
func (c *Client) Invite(ctx context.Context, companyID, email, role string) (Invitation, error) {
	var resp Invitation
	endpoint := fmt.Sprintf("v0/companies/%s/invitations", url.PathEscape(companyID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"email": email, "role": role}, &resp)
	return resp, err
}

// AcceptInvitation redeems a token.
func (c *Client) AcceptInvitation(ctx context.Context, token, userID, email string) (Invitation, error) {
	var resp Invitation
	endpoint := fmt.Sprintf("v0/invitations/%s/accept", url.PathEscape(token))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"user_id": userID, "email": email}, &resp)
	return resp, err
}

// CreateProject opens the company's design cycle.
func (c *Client) CreateProject(ctx context.Context, companyID string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("v0/companies/%s/project", url.PathEscape(companyID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// UpdateStep starts or updates a step with the given answers.
func (c *Client) UpdateStep(ctx context.Context, projectID, step string, payload map[string]any) (Step, error) {
	var resp Step
	err := c.do(ctx, http.MethodPut, c.stepPath(projectID, step, ""), map[string]any{"payload": payload}, &resp)
	return resp, err
}

// SubmitStep submits a step for review.
func (c *Client) SubmitStep(ctx context.Context, projectID, step string) (Step, error) {
	var resp Step
	err := c.do(ctx, http.MethodPost, c.stepPath(projectID, step, "submit"), nil, &resp)
	return resp, err
}

// VerifyStep approves a submitted step.
func (c *Client) VerifyStep(ctx context.Context, projectID, step string) (Step, error) {
	var resp Step
	err := c.do(ctx, http.MethodPost, c.stepPath(projectID, step, "verify"), nil, &resp)
	return resp, err
}

// RequestRevision sends a submitted step back to its owner.
func (c *Client) RequestRevision(ctx context.Context, projectID, step string) (Step, error) {
	var resp Step
	err := c.do(ctx, http.MethodPost, c.stepPath(projectID, step, "revision"), nil, &resp)
	return resp, err
}

// Progress fetches the aggregate project view.
func (c *Client) Progress(ctx context.Context, projectID string) (Progress, error) {
	var resp Progress
	endpoint := fmt.Sprintf("v0/projects/%s/progress", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Recommendations fetches the ranked design options.
func (c *Client) Recommendations(ctx context.Context, projectID string) (RecommendationSet, error) {
	var resp RecommendationSet
	endpoint := fmt.Sprintf("v0/projects/%s/recommendations", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// LockProject freezes a fully approved cycle.
func (c *Client) LockProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("v0/projects/%s/lock", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent audit events, optionally scoped to a company.
func (c *Client) Events(ctx context.Context, companyID string, limit int) ([]Event, error) {
	endpoint := "v0/events"
	q := url.Values{}
	if companyID != "" {
		q.Set("company_id", companyID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) stepPath(projectID, step, action string) string {
	p := fmt.Sprintf("v0/projects/%s/steps/%s", url.PathEscape(projectID), url.PathEscape(step))
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	if c.ActingRole != "" {
		req.Header.Set("X-Acting-Role", c.ActingRole)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
