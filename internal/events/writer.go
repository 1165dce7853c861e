package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types emitted by the workflow core. Downstream notification sinks
// (webhooks, mail bridges) subscribe to these by name.
const (
	TypeStepSubmitted     = "step.submitted"
	TypeStepVerified      = "step.verified"
	TypeRevisionRequested = "step.revision_requested"
	TypeStepUpdated       = "step.updated"
	TypeProjectCreated    = "project.created"
	TypeProjectLocked     = "project.locked"
	TypeProjectDeleted    = "project.deleted"
	TypeCompanyCreated    = "company.created"
	TypeInviteCreated     = "invitation.created"
	TypeInviteAccepted    = "invitation.accepted"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event row inside the caller's transaction so that state
// changes and their audit trail commit together.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, companyID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,company_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(companyID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
