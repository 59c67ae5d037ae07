package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

type failingStore struct {
	*storage.Memory
	err error
}

func (f failingStore) CreateBoard(context.Context, domain.TaskBoard) (domain.TaskBoard, error) {
	return domain.TaskBoard{}, f.err
}

func (f failingStore) Ping(context.Context) error { return f.err }

type testServer struct {
	e      *echo.Echo
	store  *storage.Memory
	events *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	e := echo.New()
	store := storage.NewMemory()
	events := &recordingPublisher{}
	Register(e, store, events, NewBroker(), log.New())
	return &testServer{e: e, store: store, events: events}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

const taskBody = `{"title":"Write docs","dueDate":"2024-06-01","status":"Todo","priority":"High","assigneeId":"a1","recipientId":"r1","description":"d"}`

func TestCreateBoard(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"Sprint1","initiatorId":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["taskboardId"] != float64(1) || resp["name"] != "Sprint1" || resp["initiatorId"] != "u1" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	rec = s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"Sprint2","initiatorId":"u2"}`)
	if got := decodeJSON(t, rec)["taskboardId"]; got != float64(2) {
		t.Fatalf("expected second board id 2, got %v", got)
	}

	evs := s.events.Events()
	if len(evs) != 2 || evs[0].Type != domain.EventBoardCreated || evs[0].BoardID != 1 {
		t.Fatalf("unexpected events: %#v", evs)
	}
	if evs[0].ID == "" || evs[1].Timestamp <= evs[0].Timestamp {
		t.Fatalf("expected ids and increasing timestamps: %#v", evs)
	}
}

func TestCreateBoardMissingField(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"Sprint1"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 got %d", rec.Code)
	}
	if detail := decodeJSON(t, rec)["detail"]; detail != "field required: initiatorId" {
		t.Fatalf("unexpected detail: %v", detail)
	}
	if len(s.events.Events()) != 0 {
		t.Fatalf("expected no events for rejected request")
	}
}

func TestCreateBoardContentTypes(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        int
	}{
		{name: "missing", contentType: "", want: http.StatusOK},
		{name: "json", contentType: echo.MIMEApplicationJSON, want: http.StatusOK},
		{name: "jsonCharset", contentType: echo.MIMEApplicationJSONCharsetUTF8, want: http.StatusOK},
		{name: "vendorJSON", contentType: "application/vnd.taskboard+json", want: http.StatusOK},
		{name: "textPlain", contentType: echo.MIMETextPlain, want: http.StatusUnprocessableEntity},
		{name: "form", contentType: echo.MIMEApplicationForm, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			req := httptest.NewRequest(http.MethodPost, "/api/taskboard/", strings.NewReader(`{"name":"Sprint1","initiatorId":"u1"}`))
			if tt.contentType != "" {
				req.Header.Set(echo.HeaderContentType, tt.contentType)
			}
			rec := httptest.NewRecorder()
			s.e.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected status %d got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK && decodeJSON(t, rec)["name"] != "Sprint1" {
				t.Fatalf("unexpected body: %s", rec.Body.String())
			}
			if tt.want != http.StatusOK {
				if _, ok := decodeJSON(t, rec)["detail"]; !ok {
					t.Fatalf("expected detail body, got %s", rec.Body.String())
				}
			}
		})
	}
}

func TestCreateBoardEmptyBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/taskboard/", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 got %d", rec.Code)
	}
	if detail := decodeJSON(t, rec)["detail"]; detail != "field required: name, initiatorId" {
		t.Fatalf("unexpected detail: %v", detail)
	}
}

func TestCreateBoardAcceptsEmptyStrings(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"","initiatorId":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateBoardStoreFailure(t *testing.T) {
	e := echo.New()
	store := failingStore{Memory: storage.NewMemory(), err: errors.New("redis down")}
	Register(e, store, &recordingPublisher{}, NewBroker(), log.New())

	req := httptest.NewRequest(http.MethodPost, "/api/taskboard/", strings.NewReader(`{"name":"a","initiatorId":"b"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "redis down") {
		t.Fatalf("internal error leaked to client: %s", rec.Body.String())
	}
}

func TestCreateTaskUnknownBoard(t *testing.T) {
	s := newTestServer(t)

	for name, body := range map[string]string{"valid": taskBody, "invalid": `{"title":1}`} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/taskboard/99/tasks/", body)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected status 404 got %d", rec.Code)
			}
			if detail := decodeJSON(t, rec)["detail"]; detail != "TaskBoard not found" {
				t.Fatalf("unexpected detail: %v", detail)
			}
		})
	}
}

func TestCreateTaskEchoesFields(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)

	rec := s.do(t, http.MethodPost, "/api/taskboard/1/tasks/", taskBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	want := map[string]any{
		"taskId":        float64(1),
		"title":         "Write docs",
		"dueDate":       "2024-06-01",
		"status":        "Todo",
		"priority":      "High",
		"specialStatus": nil,
		"assigneeId":    "a1",
		"recipientId":   "r1",
		"description":   "d",
	}
	if len(resp) != len(want) {
		t.Fatalf("expected %d fields, got %#v", len(want), resp)
	}
	for k, v := range want {
		if resp[k] != v {
			t.Fatalf("field %s: expected %#v got %#v", k, v, resp[k])
		}
	}
}

func TestCreateTaskValidation(t *testing.T) {
	cases := map[string]struct {
		target string
		body   string
		detail string
	}{
		"missing_fields": {"/api/taskboard/1/tasks/", `{"title":"t"}`, "field required: dueDate, status, priority, assigneeId, recipientId, description"},
		"bad_date":       {"/api/taskboard/1/tasks/", strings.Replace(taskBody, "2024-06-01", "June 1st", 1), ""},
		"bad_board_id":   {"/api/taskboard/abc/tasks/", taskBody, "invalid boardId: must be an integer"},
		"malformed_json": {"/api/taskboard/1/tasks/", `{"title":`, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t)
			s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)

			rec := s.do(t, http.MethodPost, tc.target, tc.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected status 422 got %d: %s", rec.Code, rec.Body.String())
			}
			if tc.detail != "" {
				if detail := decodeJSON(t, rec)["detail"]; detail != tc.detail {
					t.Fatalf("unexpected detail: %v", detail)
				}
			}
		})
	}
}

func TestUpdateTaskReplacesRecord(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)
	s.do(t, http.MethodPost, "/api/taskboard/1/tasks/", strings.Replace(taskBody, `"priority"`, `"specialStatus":"blocked","priority"`, 1))

	update := `{"title":"Renamed","dueDate":"2024-07-01","status":"Doing","priority":"Low","assigneeId":"a2","recipientId":"r2","description":"new"}`
	rec := s.do(t, http.MethodPut, "/api/taskboard/1/tasks/1/", update)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["title"] != "Renamed" || resp["dueDate"] != "2024-07-01" || resp["specialStatus"] != nil || resp["taskId"] != float64(1) {
		t.Fatalf("unexpected response: %#v", resp)
	}

	stored, err := s.store.GetTask(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Title != "Renamed" || stored.SpecialStatus != nil || stored.AssigneeID != "a2" {
		t.Fatalf("expected full overwrite, got %#v", stored)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)

	for _, target := range []string{"/api/taskboard/1/tasks/5/", "/api/taskboard/7/tasks/1/"} {
		rec := s.do(t, http.MethodPut, target, taskBody)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status 404 got %d", target, rec.Code)
		}
		if detail := decodeJSON(t, rec)["detail"]; detail != "TaskBoard or Task not found" {
			t.Fatalf("unexpected detail: %v", detail)
		}
	}
}

func TestDeleteTask(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)
	s.do(t, http.MethodPost, "/api/taskboard/1/tasks/", taskBody)

	rec := s.do(t, http.MethodDelete, "/api/taskboard/1/tasks/1/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if detail := decodeJSON(t, rec)["detail"]; detail != "Task deleted" {
		t.Fatalf("unexpected detail: %v", detail)
	}

	if rec := s.do(t, http.MethodDelete, "/api/taskboard/1/tasks/1/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected second delete to 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/taskboard/1/tasks/1/", taskBody); rec.Code != http.StatusNotFound {
		t.Fatalf("expected update after delete to 404, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/taskboard/1/tasks/", taskBody)
	if got := decodeJSON(t, rec)["taskId"]; got != float64(2) {
		t.Fatalf("expected fresh task id 2 after delete, got %v", got)
	}
}

func TestMoveTask(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)
	s.do(t, http.MethodPost, "/api/taskboard/1/tasks/", taskBody)
	before, _ := s.store.GetTask(context.Background(), 1, 1)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPatch, "/api/taskboard/1/tasks/1/move", `{"newStatus":"Done"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("move %d: expected status 200 got %d", i, rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != `{"taskId":1,"newStatus":"Done"}` {
			t.Fatalf("move %d: unexpected body %s", i, body)
		}
	}

	after, _ := s.store.GetTask(context.Background(), 1, 1)
	before.Status = "Done"
	if after.Title != before.Title || after.Status != "Done" || after.DueDate != before.DueDate || after.Description != before.Description {
		t.Fatalf("expected only status to change: before %#v after %#v", before, after)
	}

	if rec := s.do(t, http.MethodPatch, "/api/taskboard/1/tasks/1/move", `{}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected missing newStatus to 422, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, "/api/taskboard/1/tasks/9/move", `{"newStatus":"Done"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected unknown task to 404, got %d", rec.Code)
	}
}

func TestAddMemberEchoesWithoutChecks(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/taskboard/42/members/", `{"userId":"u9","permission":"admin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"boardId":42,"userId":"u9","permission":"admin"}` {
		t.Fatalf("unexpected body %s", body)
	}
	if ok, _ := s.store.BoardExists(context.Background(), 42); ok {
		t.Fatalf("member admission must not create boards")
	}
	if len(s.events.Events()) != 0 {
		t.Fatalf("member admission must not emit events")
	}
}

func TestReadEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"other","initiatorId":"u"}`)
	s.do(t, http.MethodPost, "/api/taskboard/1/tasks/", taskBody)
	s.do(t, http.MethodPost, "/api/taskboard/2/tasks/", taskBody)

	rec := s.do(t, http.MethodGet, "/api/taskboard/1", "")
	if rec.Code != http.StatusOK || decodeJSON(t, rec)["name"] != "b" {
		t.Fatalf("unexpected board response %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/taskboard/2/tasks/", "")
	var list tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != 2 {
		t.Fatalf("unexpected tasks: %#v", list.Tasks)
	}

	rec = s.do(t, http.MethodGet, "/api/taskboard/1/tasks/1/", "")
	if rec.Code != http.StatusOK || decodeJSON(t, rec)["taskId"] != float64(1) {
		t.Fatalf("unexpected task response %d: %s", rec.Code, rec.Body.String())
	}

	for _, target := range []string{"/api/taskboard/9", "/api/taskboard/9/tasks/", "/api/taskboard/1/tasks/9/"} {
		if rec := s.do(t, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 got %d", target, rec.Code)
		}
	}
}

func TestTaskEventsPublished(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/taskboard/", `{"name":"b","initiatorId":"u"}`)
	s.do(t, http.MethodPost, "/api/taskboard/1/tasks/", taskBody)
	s.do(t, http.MethodPut, "/api/taskboard/1/tasks/1/", taskBody)
	s.do(t, http.MethodPatch, "/api/taskboard/1/tasks/1/move", `{"newStatus":"Done"}`)
	s.do(t, http.MethodDelete, "/api/taskboard/1/tasks/1/", "")

	evs := s.events.Events()
	wantTypes := []string{domain.EventBoardCreated, domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskMoved, domain.EventTaskDeleted}
	if len(evs) != len(wantTypes) {
		t.Fatalf("expected %d events, got %#v", len(wantTypes), evs)
	}
	for i, typ := range wantTypes {
		if evs[i].Type != typ {
			t.Fatalf("event %d: expected %s got %s", i, typ, evs[i].Type)
		}
	}
	if string(evs[3].Data) != `{"taskId":1,"newStatus":"Done"}` {
		t.Fatalf("unexpected move payload: %s", evs[3].Data)
	}
	if evs[4].TaskID != 1 || evs[4].Data != nil {
		t.Fatalf("unexpected delete event: %#v", evs[4])
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	e := echo.New()
	Register(e, storage.NewMemory(), &recordingPublisher{err: errors.New("queue down")}, NewBroker(), log.New())

	req := httptest.NewRequest(http.MethodPost, "/api/taskboard/", strings.NewReader(`{"name":"a","initiatorId":"b"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	e := echo.New()
	Register(e, failingStore{Memory: storage.NewMemory(), err: errors.New("down")}, nil, NewBroker(), log.New())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
}

func TestUnknownRouteRendersDetail(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	if detail := decodeJSON(t, rec)["detail"]; detail != "Not Found" {
		t.Fatalf("unexpected detail: %v", detail)
	}
}

func TestCreateBoardGzipBody(t *testing.T) {
	s := newTestServer(t)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`{"name":"Zipped","initiatorId":"u1"}`)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/taskboard/", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeJSON(t, rec)["name"]; got != "Zipped" {
		t.Fatalf("unexpected name %v", got)
	}
}

func TestRequestBodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	big := `{"name":"` + strings.Repeat("x", 70*1024) + `","initiatorId":"u1"}`
	rec := s.do(t, http.MethodPost, "/api/taskboard/", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if _, ok := decodeJSON(t, rec)["detail"]; !ok {
		t.Fatalf("expected detail body, got %s", rec.Body.String())
	}
}
