package server

import "orgforge/internal/domain"

type CompanyCreateRequest struct {
	Name string `json:"name" minLength:"1" example:"Acme Industries"`
}

type CompanyListResponse struct {
	Items []domain.Company `json:"items"`
}

type MembershipListResponse struct {
	Items []domain.Membership `json:"items"`
}

type InviteRequest struct {
	Email string `json:"email" format:"email" example:"ceo@acme.test"`
	Role  string `json:"role" enum:"ceo,consultant"`
}

type InvitationListResponse struct {
	Items []domain.Invitation `json:"items"`
}

// AcceptRequest identifies the redeeming user. UserID may be omitted when the
// caller is already authenticated; the principal is used instead.
type AcceptRequest struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty" format:"email"`
}

// StepPath is the shared path shape of the step endpoints.
type StepPath struct {
	ProjectID string `path:"project_id"`
	Step      string `path:"step" enum:"diagnosis,ceo_philosophy,organization,performance,compensation,hr_policy_os"`
}

type StepUpdateRequest struct {
	Payload map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}

type APIKeyCreateRequest struct {
	Name string `json:"name,omitempty" example:"ci"`
}

// APIKeyCreateResponse carries the plaintext key exactly once.
type APIKeyCreateResponse struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Key  string `json:"key"`
}

type APIKeyListResponse struct {
	Items []domain.APIKey `json:"items"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Source string `json:"source,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"hr_manager,ceo,consultant,admin"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
