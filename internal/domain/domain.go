package domain

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Membership struct {
	CompanyID string `json:"company_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role" enum:"hr_manager,ceo,consultant"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type HrProject struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Status    string `json:"status" enum:"draft,active,completed,locked"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// HrProject.Status values.
const (
	ProjectDraft     = "draft"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
	ProjectLocked    = "locked"
)

// StepRecord holds one step's status and answers. Payload is opaque to the
// workflow core; the recommendation engine reads a few well-known keys out of
// it (growth_stage, philosophy_trait, structure_type, performance_method,
// compensation_structure).
type StepRecord struct {
	ProjectID   string     `json:"project_id"`
	Step        StepKey    `json:"step" enum:"diagnosis,ceo_philosophy,organization,performance,compensation,hr_policy_os"`
	Status      StepStatus `json:"status" enum:"not_started,in_progress,submitted,approved,locked"`
	PayloadJSON *string    `json:"payload_json,omitempty"`
	SubmittedAt *string    `json:"submitted_at,omitempty" format:"date-time"`
	CompletedAt *string    `json:"completed_at,omitempty" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

type Invitation struct {
	Token      string  `json:"token"`
	CompanyID  string  `json:"company_id"`
	Email      string  `json:"email"`
	Role       Role    `json:"role" enum:"ceo,consultant"`
	InvitedBy  string  `json:"invited_by"`
	ExpiresAt  string  `json:"expires_at" format:"date-time"`
	AcceptedAt *string `json:"accepted_at,omitempty" format:"date-time"`
	AcceptedBy *string `json:"accepted_by,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CompanyID  string `json:"company_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
