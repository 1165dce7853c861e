package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"orgforge/internal/config"
	"orgforge/internal/db"
	"orgforge/internal/domain"
	"orgforge/internal/engine"
	"orgforge/internal/events"
	"orgforge/internal/migrate"
	"orgforge/internal/policy"
)

type webhookSink struct {
	URL   string
	close func()

	mu  sync.Mutex
	got []webhookEvent
}

func (s *webhookSink) Received() []webhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webhookEvent(nil), s.got...)
}

func newWebhookSink(t *testing.T) *webhookSink {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	sink := &webhookSink{URL: "http://" + ln.Addr().String()}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sink.mu.Lock()
		sink.got = append(sink.got, evt)
		sink.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})}
	go srv.Serve(ln)
	sink.close = func() {
		srv.Shutdown(context.Background())
		ln.Close()
	}
	t.Cleanup(sink.close)
	return sink
}

// The dispatcher must pick up webhooks imported into a project config, not
// just the engine defaults, and deliver only events behind the cursor that
// match the hook's filter.
func TestWebhookDeliveryFromImportedConfig(t *testing.T) {
	sink := newWebhookSink(t)

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	ctx := context.Background()
	hr := policy.Actor{UserID: "hana", Role: domain.RoleHRManager}

	company, err := e.CreateCompany(ctx, "Acme", hr)
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	project, err := e.CreateProject(ctx, company.ID, hr)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	cfg := config.Default(project.ID)
	cfg.Notifications.Webhooks = []config.WebhookConfig{{
		URL:    sink.URL,
		Events: []string{events.TypeStepSubmitted},
	}}
	if err := e.ImportConfig(ctx, project.ID, hr, cfg); err != nil {
		t.Fatalf("import config: %v", err)
	}

	d := &webhookDispatcher{
		engine:  e,
		client:  &http.Client{Timeout: time.Second},
		cursors: make(map[string]int64),
	}
	// first pass pins the cursor at the current log tail
	d.dispatchAll()
	if got := sink.Received(); len(got) != 0 {
		t.Fatalf("history replayed at fresh sink: %+v", got)
	}

	if _, err := e.StartOrUpdate(ctx, project.ID, domain.StepDiagnosis, hr, map[string]any{"growth_stage": "early"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := e.Submit(ctx, project.ID, domain.StepDiagnosis, hr); err != nil {
		t.Fatalf("submit: %v", err)
	}
	d.dispatchAll()

	got := sink.Received()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d (%+v), want exactly the submission", len(got), got)
	}
	if got[0].Type != events.TypeStepSubmitted || got[0].CompanyID != company.ID {
		t.Fatalf("delivered event = %+v, want %s for company %s", got[0], events.TypeStepSubmitted, company.ID)
	}

	// a second pass has nothing new behind the cursor
	d.dispatchAll()
	if got := sink.Received(); len(got) != 1 {
		t.Fatalf("duplicate delivery: %+v", got)
	}
}
