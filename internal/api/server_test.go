package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/motorbank-core/internal/audit"
	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/history"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/config"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/logging"
	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

// fakeDriver records calls and returns canned results.
type fakeDriver struct {
	mu        sync.Mutex
	calls     []string
	connected bool
	statuses  []driver.Status
	summary   driver.Summary
	err       error
	accepted  bool
	pollErr   error
}

func newFakeDriver() *fakeDriver {
	d := &fakeDriver{connected: true, accepted: true}
	for n := 1; n <= motor.Count; n++ {
		name := config.DefaultMotorName(n)
		if n <= 2 {
			name = fmt.Sprintf("Window %d", n)
		}
		d.statuses = append(d.statuses, driver.Status{
			Number: n, Name: name, Visible: driver.Visible(n, name),
			State: motor.Close, Label: motor.Close.Label(),
		})
	}
	d.summary = driver.Summary{State: motor.Close, Label: "Closed", Icon: "closed"}
	return d
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) SetErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDriver) outcome() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted, d.err
}

func (d *fakeDriver) Execute(_ context.Context, source, command string) (driver.Result, error) {
	d.record(source + ":" + command)
	accepted, err := d.outcome()
	if err != nil {
		return driver.Result{Command: command}, err
	}
	return driver.Result{Command: command, Accepted: accepted}, nil
}

func (d *fakeDriver) ExecuteAction(_ context.Context, source string, number int, action string) (driver.Result, error) {
	d.record(fmt.Sprintf("%s:%s/%d", source, action, number))
	accepted, err := d.outcome()
	if err != nil {
		return driver.Result{Number: number}, err
	}
	return driver.Result{Number: number, Accepted: accepted}, nil
}

func (d *fakeDriver) Poll(_ context.Context, source string) error {
	d.record(source + ":poll")
	return d.pollErr
}

func (d *fakeDriver) Status(number int) (driver.Status, error) {
	if _, err := motor.IndexFromNumber(number); err != nil {
		return driver.Status{}, err
	}
	return d.statuses[number-1], nil
}

func (d *fakeDriver) Statuses() []driver.Status { return d.statuses }
func (d *fakeDriver) Summary() driver.Summary   { return d.summary }
func (d *fakeDriver) Connected() bool           { return d.connected }

type fakeHistory struct {
	events []history.EventRecord
	err    error
	number int
	limit  int
}

func (h *fakeHistory) ListEvents(_ context.Context, number, limit int) ([]history.EventRecord, error) {
	h.number, h.limit = number, limit
	return h.events, h.err
}

type fakeAudit struct {
	filter audit.Filter
	result *audit.ListResult
}

func (a *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	a.filter = filter
	return a.result, nil
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

// testServer builds a Server around fakes without binding a port.
func testServer(t *testing.T, d *fakeDriver) (*Server, http.Handler) {
	t.Helper()

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:      testWSConfig(),
		Logger:  logging.Discard(),
		Driver:  d,
		History: &fakeHistory{},
		Audit:   &fakeAudit{result: &audit.ListResult{Entries: []audit.Entry{}}},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, srv.buildRouter()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Driver: newFakeDriver()}); err == nil {
		t.Error("expected error without logger")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("expected error without driver")
	}
}

func TestHealth(t *testing.T) {
	d := newFakeDriver()
	_, h := testServer(t, d)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["link_connected"] != true {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	d.connected = false
	rec = doRequest(t, h, http.MethodGet, "/api/v1/health", "")
	decodeBody(t, rec, &body)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestRequestID_Propagated(t *testing.T) {
	_, h := testServer(t, newFakeDriver())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestListMotors_HidesUnnamed(t *testing.T) {
	_, h := testServer(t, newFakeDriver())

	var body struct {
		Motors []driver.Status `json:"motors"`
		Count  int             `json:"count"`
	}
	decodeBody(t, doRequest(t, h, http.MethodGet, "/api/v1/motors", ""), &body)
	if body.Count != 2 || body.Motors[0].Name != "Window 1" {
		t.Errorf("visible motors = %+v", body)
	}

	decodeBody(t, doRequest(t, h, http.MethodGet, "/api/v1/motors?all=true", ""), &body)
	if body.Count != motor.Count {
		t.Errorf("all motors count = %d", body.Count)
	}
}

func TestGetMotor(t *testing.T) {
	_, h := testServer(t, newFakeDriver())

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/motors/2", http.StatusOK},
		{"/api/v1/motors/0", http.StatusNotFound},
		{"/api/v1/motors/9", http.StatusNotFound},
		{"/api/v1/motors/two", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodGet, tt.path, "")
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestMotorAction(t *testing.T) {
	d := newFakeDriver()
	_, h := testServer(t, d)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/motors/3/open", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if calls := d.Calls(); len(calls) != 1 || calls[0] != "api:open/3" {
		t.Errorf("calls = %v", calls)
	}
}

func TestMotorAction_Ignored(t *testing.T) {
	d := newFakeDriver()
	d.accepted = false
	_, h := testServer(t, d)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/motors/3/close", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res driver.Result
	decodeBody(t, rec, &res)
	if res.Accepted {
		t.Error("expected accepted=false")
	}
}

func TestCommand(t *testing.T) {
	d := newFakeDriver()
	_, h := testServer(t, d)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/commands", `{"command":" Close5 "}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if calls := d.Calls(); len(calls) != 1 || calls[0] != "api:Close5" {
		t.Errorf("calls = %v", calls)
	}
}

func TestCommand_BadBodies(t *testing.T) {
	_, h := testServer(t, newFakeDriver())

	for _, body := range []string{`{`, `{"command":""}`, `{"other":1}`} {
		rec := doRequest(t, h, http.MethodPost, "/api/v1/commands", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, rec.Code)
		}
	}
}

func TestCommand_BodyTooLarge(t *testing.T) {
	_, h := testServer(t, newFakeDriver())

	body := `{"command":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rec := doRequest(t, h, http.MethodPost, "/api/v1/commands", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCommand_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"invalid", protocol.ErrInvalidCommand, http.StatusBadRequest, ErrCodeValidation},
		{"unsupported", protocol.ErrUnsupportedCommand, http.StatusBadRequest, ErrCodeValidation},
		{"send failed", fmt.Errorf("%w: %w", driver.ErrSendFailed, protocol.ErrNotConnected), http.StatusServiceUnavailable, ErrCodeLinkUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDriver()
			d.err = tt.err
			_, h := testServer(t, d)

			rec := doRequest(t, h, http.MethodPost, "/api/v1/commands", `{"command":"Open1"}`)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			var body Error
			decodeBody(t, rec, &body)
			if body.Code != tt.want {
				t.Errorf("code = %q, want %q", body.Code, tt.want)
			}
		})
	}
}

func TestPoll(t *testing.T) {
	d := newFakeDriver()
	_, h := testServer(t, d)

	if rec := doRequest(t, h, http.MethodPost, "/api/v1/poll", ""); rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}

	d.pollErr = protocol.ErrNotConnected
	if rec := doRequest(t, h, http.MethodPost, "/api/v1/poll", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	_, h := testServer(t, newFakeDriver())

	var sum driver.Summary
	decodeBody(t, doRequest(t, h, http.MethodGet, "/api/v1/summary", ""), &sum)
	if sum.AnyOpen || sum.Icon != "closed" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestListMotorEvents(t *testing.T) {
	srv, h := testServer(t, newFakeDriver())
	hist := &fakeHistory{events: []history.EventRecord{{
		ID: 1, Motor: 4,
		Event: motor.Event{Kind: motor.Open, Success: true, Time: time.Date(2026, 10, 1, 9, 26, 0, 0, time.UTC), Summary: "Open at 09:26"},
	}}}
	srv.history = hist

	rec := doRequest(t, h, http.MethodGet, "/api/v1/motors/4/events?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if hist.number != 4 || hist.limit != 5 {
		t.Errorf("ListEvents(%d, %d)", hist.number, hist.limit)
	}
	var body struct {
		Events []history.EventRecord `json:"events"`
	}
	decodeBody(t, rec, &body)
	if len(body.Events) != 1 || body.Events[0].Event.Summary != "Open at 09:26" {
		t.Errorf("events = %+v", body.Events)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/motors/4/events?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	srv.history = nil
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/motors/4/events", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no history status = %d", rec.Code)
	}
}

func TestListAudit(t *testing.T) {
	srv, h := testServer(t, newFakeDriver())
	aud := srv.audit.(*fakeAudit)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/audit?source=mqtt&outcome=failed&motor=2&limit=10&offset=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := audit.Filter{Source: "mqtt", Outcome: "failed", Motor: 2, Limit: 10, Offset: 20}
	if aud.filter != want {
		t.Errorf("filter = %+v, want %+v", aud.filter, want)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/audit?offset=-x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad offset status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	srv, h := testServer(t, newFakeDriver())
	srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/motors", nil)
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://panel.local" {
		t.Error("allowed origin not echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin echoed")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t, newFakeDriver())
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStartClose(t *testing.T) {
	srv, _ := testServer(t, newFakeDriver())

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("expected error before Start")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
