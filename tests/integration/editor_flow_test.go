package integration_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chordfold/chordfold/internal/auth"
	"github.com/chordfold/chordfold/internal/draft"
	"github.com/chordfold/chordfold/internal/editor"
	"github.com/chordfold/chordfold/internal/saveflow"
	"github.com/chordfold/chordfold/internal/server"
	"github.com/chordfold/chordfold/internal/sheets"
	"github.com/chordfold/chordfold/internal/testutil"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	integrationSigningSecret = "integration-secret"
	integrationOwnerID       = "user-abc"
)

type integrationHarness struct {
	handler    http.Handler
	service    *sheets.Service
	draftStore *draft.TieredStore
	clock      *testutil.FakeClock
	token      string
}

func newIntegrationHarness(testContext *testing.T) *integrationHarness {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(testContext.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&sheets.Sheet{}, &draft.StoredDraft{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	clock := testutil.NewFakeClock(time.Unix(1700000000, 0).UTC())

	service, err := sheets.NewService(sheets.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: sheets.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build sheet service: %v", err)
	}

	draftStore, err := draft.NewTieredStore(draft.StoreConfig{Database: db, Clock: clock.Now})
	if err != nil {
		testContext.Fatalf("failed to build draft store: %v", err)
	}

	tokenManager, err := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(integrationSigningSecret),
		Clock:         clock.Now,
	})
	if err != nil {
		testContext.Fatalf("failed to build token manager: %v", err)
	}
	token, _, err := tokenManager.Issue(integrationOwnerID)
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		SheetService: service,
		DraftStore:   draftStore,
		Clock:        clock.Now,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	return &integrationHarness{
		handler:    handler,
		service:    service,
		draftStore: draftStore,
		clock:      clock,
		token:      token,
	}
}

func (h *integrationHarness) request(testContext *testing.T, method, path, body string) *httptest.ResponseRecorder {
	testContext.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Authorization", "Bearer "+h.token)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

// editingSession mirrors what an editor front end holds: a command history
// over the sheet body and a save coordinator wired to the shared stores.
type editingSession struct {
	history *editor.History
	coord   *saveflow.Coordinator
}

func (s *editingSession) typeText(testContext *testing.T, pos int, text string, at time.Time) {
	testContext.Helper()
	command, err := editor.NewInsertText(pos, text, at)
	if err != nil {
		testContext.Fatalf("failed to build insert: %v", err)
	}
	if err := s.history.Execute(command); err != nil {
		testContext.Fatalf("failed to execute insert: %v", err)
	}
	s.coord.ContentChanged()
}

func TestEditSaveRecoverFlow(testContext *testing.T) {
	harness := newIntegrationHarness(testContext)

	// Create the sheet over HTTP, as the front end would.
	created := harness.request(testContext, http.MethodPost, "/sheets",
		`{"title":"Fast Car","content":""}`)
	if created.Code != http.StatusCreated {
		testContext.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	var sheet struct {
		SheetID string `json:"sheet_id"`
		Version int64  `json:"version"`
	}
	if err := json.Unmarshal(created.Body.Bytes(), &sheet); err != nil {
		testContext.Fatalf("failed to decode create response: %v", err)
	}

	remote, err := sheets.NewRemote(harness.service, sheets.OwnerID(integrationOwnerID))
	if err != nil {
		testContext.Fatalf("failed to build remote: %v", err)
	}

	history := editor.NewHistory("", editor.HistoryOptions{}, nil)

	coord, err := saveflow.NewCoordinator(saveflow.CoordinatorConfig{
		EntityID: sheet.SheetID,
		OwnerID:  integrationOwnerID,
		Store:    harness.draftStore,
		Remote:   remote,
		Clock:    harness.clock,
		Content:  history.Content,
		CommandLog: func() []editor.LogEntry {
			return history.Tail(50)
		},
	})
	if err != nil {
		testContext.Fatalf("failed to build coordinator: %v", err)
	}
	defer coord.Close()

	session := &editingSession{history: history, coord: coord}

	// Two quick keystroke bursts coalesce into two commands.
	session.typeText(testContext, 0, "You got a fast car", harness.clock.Now())
	harness.clock.Advance(time.Second)
	session.typeText(testContext, 18, "\n[C] I want a ticket", harness.clock.Now())

	// The debounce window elapses and the draft lands locally.
	harness.clock.Advance(2 * time.Second)

	recovered := harness.request(testContext, http.MethodGet, "/sheets/"+sheet.SheetID+"/draft", "")
	var draftState struct {
		State   string `json:"state"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(recovered.Body.Bytes(), &draftState); err != nil {
		testContext.Fatalf("failed to decode draft response: %v", err)
	}
	if draftState.State != "draft_available" {
		testContext.Fatalf("expected local draft after debounce, got %q", draftState.State)
	}
	if draftState.Content != history.Content() {
		testContext.Fatalf("draft content diverged from editor: %q", draftState.Content)
	}

	// The sheet itself has not synced yet.
	beforeSync := harness.request(testContext, http.MethodGet, "/sheets/"+sheet.SheetID, "")
	var beforePayload struct {
		Content string `json:"content"`
		Version int64  `json:"version"`
	}
	if err := json.Unmarshal(beforeSync.Body.Bytes(), &beforePayload); err != nil {
		testContext.Fatalf("failed to decode sheet response: %v", err)
	}
	if beforePayload.Content != "" || beforePayload.Version != 1 {
		testContext.Fatalf("sheet synced too early: %#v", beforePayload)
	}

	// The throttle window elapses and the remote sync runs, superseding the
	// draft.
	harness.clock.Advance(30 * time.Second)

	afterSync := harness.request(testContext, http.MethodGet, "/sheets/"+sheet.SheetID, "")
	var afterPayload struct {
		Content string `json:"content"`
		Version int64  `json:"version"`
	}
	if err := json.Unmarshal(afterSync.Body.Bytes(), &afterPayload); err != nil {
		testContext.Fatalf("failed to decode sheet response: %v", err)
	}
	if afterPayload.Content != history.Content() {
		testContext.Fatalf("remote content diverged: %q", afterPayload.Content)
	}
	if afterPayload.Version != 2 {
		testContext.Fatalf("expected version 2 after sync, got %d", afterPayload.Version)
	}

	resolved := harness.request(testContext, http.MethodGet, "/sheets/"+sheet.SheetID+"/draft", "")
	var resolvedState struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(resolved.Body.Bytes(), &resolvedState); err != nil {
		testContext.Fatalf("failed to decode draft response: %v", err)
	}
	if resolvedState.State != "resolved" {
		testContext.Fatalf("expected draft superseded after sync, got %q", resolvedState.State)
	}
}

func TestAbandonedSessionLeavesRecoverableDraft(testContext *testing.T) {
	harness := newIntegrationHarness(testContext)

	created := harness.request(testContext, http.MethodPost, "/sheets",
		`{"title":"Unfinished","content":""}`)
	var sheet struct {
		SheetID string `json:"sheet_id"`
	}
	if err := json.Unmarshal(created.Body.Bytes(), &sheet); err != nil {
		testContext.Fatalf("failed to decode create response: %v", err)
	}

	remote, err := sheets.NewRemote(harness.service, sheets.OwnerID(integrationOwnerID))
	if err != nil {
		testContext.Fatalf("failed to build remote: %v", err)
	}
	history := editor.NewHistory("", editor.HistoryOptions{}, nil)
	coord, err := saveflow.NewCoordinator(saveflow.CoordinatorConfig{
		EntityID: sheet.SheetID,
		OwnerID:  integrationOwnerID,
		Store:    harness.draftStore,
		Remote:   remote,
		Clock:    harness.clock,
		Content:  history.Content,
	})
	if err != nil {
		testContext.Fatalf("failed to build coordinator: %v", err)
	}

	session := &editingSession{history: history, coord: coord}
	session.typeText(testContext, 0, "[Am] half a verse", harness.clock.Now())

	// Only the debounce elapses before the session dies; the remote never
	// sees the words.
	harness.clock.Advance(2 * time.Second)
	coord.Close()

	recovered := harness.request(testContext, http.MethodGet, "/sheets/"+sheet.SheetID+"/draft", "")
	var draftState struct {
		State   string `json:"state"`
		Preview string `json:"preview"`
		Age     string `json:"age"`
	}
	if err := json.Unmarshal(recovered.Body.Bytes(), &draftState); err != nil {
		testContext.Fatalf("failed to decode draft response: %v", err)
	}
	if draftState.State != "draft_available" {
		testContext.Fatalf("expected recoverable draft, got %q", draftState.State)
	}
	if draftState.Preview != "[Am] half a verse" {
		testContext.Fatalf("unexpected preview: %q", draftState.Preview)
	}

	// The owner discards it from the recovery prompt.
	discarded := harness.request(testContext, http.MethodDelete, "/sheets/"+sheet.SheetID+"/draft", "")
	if discarded.Code != http.StatusNoContent {
		testContext.Fatalf("expected 204, got %d", discarded.Code)
	}
	after := harness.request(testContext, http.MethodGet, "/sheets/"+sheet.SheetID+"/draft", "")
	var afterState struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(after.Body.Bytes(), &afterState); err != nil {
		testContext.Fatalf("failed to decode draft response: %v", err)
	}
	if afterState.State != "resolved" {
		testContext.Fatalf("expected resolved after discard, got %q", afterState.State)
	}
}
