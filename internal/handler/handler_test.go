package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/importer"
	"github.com/sheet-tracker/backend/internal/infrastructure"
	"github.com/sheet-tracker/backend/internal/repository"
	"github.com/sheet-tracker/backend/internal/service"
)

type testEnv struct {
	router     *gin.Engine
	catalog    *service.CatalogService
	hub        *StreamHub
	adminToken string
	userToken  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard, TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := infrastructure.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	metrics, err := infrastructure.NewMetrics(metricnoop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	tracer := tracenoop.NewTracerProvider().Tracer("test")
	log := zap.NewNop()

	userRepo := repository.NewUserRepository(db)
	catalogService := service.NewCatalogService(repository.NewProblemRepository(db), importer.DefaultSheetTypes, tracer, log, metrics)
	progressService := service.NewProgressService(userRepo, catalogService, tracer, log, metrics)
	userService := service.NewUserService(userRepo, &infrastructure.JWTConfig{
		SecretKey:          "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: time.Hour,
		Issuer:             "test",
	}, nil, tracer, log)

	hub := NewStreamHub([]string{"*"}, log, metrics)
	catalogService.Subscribe(hub)

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:    NewAuthHandler(userService),
		User:    NewUserHandler(userService, progressService),
		Problem: NewProblemHandler(catalogService, progressService),
		Admin:   NewAdminHandler(catalogService, importer.NewValidator(importer.DefaultSheetTypes), domain.BatchContinueOnError),
		Stream:  hub,
	}, userService)

	env := &testEnv{router: router, catalog: catalogService, hub: hub}
	env.adminToken = env.signup(t, "Admin", "admin@example.com")
	env.userToken = env.signup(t, "Ada", "ada@example.com")
	return env
}

func (e *testEnv) signup(t *testing.T, name, email string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "secret123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", email, w.Code, w.Body.String())
	}
	var resp AuthResponse
	decode(t, w, &resp)
	return resp.Tokens.AccessToken
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(path, token, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", filename)
	_, _ = part.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) addProblem(t *testing.T, title, topic string, d domain.Difficulty, sheet string) domain.Problem {
	t.Helper()
	p, err := e.catalog.Add(context.Background(), domain.ProblemInput{
		Title:      title,
		Link:       "https://example.com/" + strings.ReplaceAll(title, " ", "-"),
		Topic:      topic,
		SubTopic:   "Basics",
		Difficulty: d,
		SheetType:  sheet,
	})
	if err != nil {
		t.Fatalf("add %s: %v", title, err)
	}
	return *p
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{
		"title": "Two Sum", "link": "https://leetcode.com/problems/two-sum/",
		"topic": "Arrays", "subTopic": "Hashing", "difficulty": "Easy", "sheetType": "DSA",
	}

	if w := env.do(http.MethodPost, "/api/admin/problems", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/admin/problems", env.userToken, body); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	w := env.do(http.MethodPost, "/api/admin/problems", env.adminToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created domain.Problem
	decode(t, w, &created)
	if created.ID == "" || created.DisplayOrder != 1 {
		t.Fatalf("unexpected problem: %+v", created)
	}

}

func TestCreateProblemFromForm(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{
		"title": "Contains Duplicate", "link": "https://leetcode.com/problems/contains-duplicate/",
		"topic": "Arrays", "difficulty": "Easy", "sheetType": "Blind 75",
	}

	w := env.do(http.MethodPost, "/api/admin/problems", env.adminToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 without subTopic and with a new sheet type, got %d: %s", w.Code, w.Body.String())
	}
	var created domain.Problem
	decode(t, w, &created)
	if created.SheetType != "Blind 75" || created.SubTopic != "" {
		t.Fatalf("unexpected problem: %+v", created)
	}

	w = env.do(http.MethodGet, "/api/problems/sections", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"blind-75"`) {
		t.Fatalf("expected new section to be listed, got %d: %s", w.Code, w.Body.String())
	}

	body["topic"] = "  "
	if w := env.do(http.MethodPost, "/api/admin/problems", env.adminToken, body); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank topic, got %d", w.Code)
	}
	body["topic"] = "Arrays"
	body["difficulty"] = "Trivial"
	if w := env.do(http.MethodPost, "/api/admin/problems", env.adminToken, body); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown difficulty, got %d", w.Code)
	}
}

func TestUpdateAndDeleteProblem(t *testing.T) {
	env := newTestEnv(t)
	p := env.addProblem(t, "Two Sum", "Arrays", domain.DifficultyEasy, "DSA")

	w := env.do(http.MethodPatch, "/api/admin/problems/"+p.ID, env.adminToken, map[string]string{"title": "Two Sum II"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodPatch, "/api/admin/problems/"+p.ID, env.adminToken, map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", w.Code)
	}
	if w := env.do(http.MethodPatch, "/api/admin/problems/missing", env.adminToken, map[string]string{"title": "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	if w := env.do(http.MethodDelete, "/api/admin/problems/"+p.ID, env.adminToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/problems/"+p.ID, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestListProblemsWithFilters(t *testing.T) {
	env := newTestEnv(t)
	env.addProblem(t, "Two Sum", "Arrays", domain.DifficultyEasy, "DSA")
	env.addProblem(t, "Merge Intervals", "Intervals", domain.DifficultyMedium, "DSA")
	env.addProblem(t, "Rank Scores", "Window Functions", domain.DifficultyMedium, "SQL")

	var list struct {
		Problems []domain.Problem `json:"problems"`
		Count    int              `json:"count"`
	}
	w := env.do(http.MethodGet, "/api/problems?section=dsa&search=arr", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &list)
	if list.Count != 1 || list.Problems[0].Title != "Two Sum" {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = env.do(http.MethodGet, "/api/problems?difficulty=Medium", "", nil)
	decode(t, w, &list)
	if list.Count != 2 {
		t.Fatalf("expected 2 medium problems, got %d", list.Count)
	}

	if w := env.do(http.MethodGet, "/api/problems?difficulty=Insane", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var grouped struct {
		Groups []struct {
			Topic string `json:"topic"`
		} `json:"groups"`
	}
	w = env.do(http.MethodGet, "/api/problems?section=dsa&grouped=true", "", nil)
	decode(t, w, &grouped)
	if len(grouped.Groups) != 2 || grouped.Groups[0].Topic != "Arrays" {
		t.Fatalf("unexpected groups: %+v", grouped)
	}

	var sections struct {
		Sections []struct {
			ID    string `json:"id"`
			Total int    `json:"total"`
		} `json:"sections"`
		Active string `json:"active"`
	}
	w = env.do(http.MethodGet, "/api/problems/sections", "", nil)
	decode(t, w, &sections)
	if sections.Active != "dsa" || len(sections.Sections) != 2 || sections.Sections[1].ID != "sql" {
		t.Fatalf("unexpected sections: %+v", sections)
	}
}

func TestProgressRoutes(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProblem(t, "Two Sum", "Arrays", domain.DifficultyEasy, "DSA")
	env.addProblem(t, "3Sum", "Arrays", domain.DifficultyMedium, "DSA")

	w := env.do(http.MethodPost, "/api/users/me/problems/"+a.ID+"/solve", env.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ProgressResponse
	decode(t, w, &resp)
	if !resp.Changed || len(resp.SolvedProblems) != 1 || resp.SolvedProblems[0] != a.ID {
		t.Fatalf("unexpected progress: %+v", resp)
	}

	if w := env.do(http.MethodPost, "/api/users/me/problems/"+a.ID+"/explode", env.userToken, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/users/me/problems/"+a.ID+"/solve", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	var list struct {
		Count int `json:"count"`
	}
	decode(t, env.do(http.MethodGet, "/api/problems?status=unsolved", env.userToken, nil), &list)
	if list.Count != 1 {
		t.Fatalf("expected 1 unsolved problem, got %d", list.Count)
	}
	// anonymous callers have solved nothing
	decode(t, env.do(http.MethodGet, "/api/problems?status=unsolved", "", nil), &list)
	if list.Count != 2 {
		t.Fatalf("expected 2 unsolved problems anonymously, got %d", list.Count)
	}

	w = env.do(http.MethodPut, "/api/users/me/notes/"+a.ID, env.userToken, map[string]string{"note": "hash map"})
	decode(t, w, &resp)
	if resp.Notes[a.ID] != "hash map" {
		t.Fatalf("unexpected notes: %+v", resp.Notes)
	}

	var summary domain.UserProgress
	decode(t, env.do(http.MethodGet, "/api/users/me/progress", env.userToken, nil), &summary)
	if summary.TotalSolved != 1 || summary.EasySolved != 1 || summary.NotesCount != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var me domain.UserResponse
	decode(t, env.do(http.MethodGet, "/api/users/me", env.userToken, nil), &me)
	if len(me.SolvedProblems) != 1 || me.Notes[a.ID] != "hash map" {
		t.Fatalf("progress not persisted: %+v", me)
	}
}

func TestImportProblems(t *testing.T) {
	env := newTestEnv(t)
	header := "title,link,topic,subTopic,difficulty,sheetType\n"
	bad := header +
		"Two Sum,https://leetcode.com/problems/two-sum/,Arrays,Hashing,Easy,DSA\n" +
		",https://leetcode.com/problems/3sum/,Arrays,Two Pointers,Medium,DSA\n" +
		"Rank Scores,https://leetcode.com/problems/rank-scores/,Window Functions,Ranking,Medium,SQL\n"

	w := env.upload("/api/admin/problems/import", env.adminToken, "problems.csv", bad)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var rejected struct {
		Errors  []string              `json:"errors"`
		Preview []domain.ProblemInput `json:"preview"`
	}
	decode(t, w, &rejected)
	if len(rejected.Errors) != 1 || !strings.HasPrefix(rejected.Errors[0], "Row 2: Missing or invalid title") {
		t.Fatalf("unexpected errors: %v", rejected.Errors)
	}
	if len(rejected.Preview) != 2 {
		t.Fatalf("expected 2 valid rows in preview, got %d", len(rejected.Preview))
	}

	good := header +
		"Two Sum,https://leetcode.com/problems/two-sum/,Arrays,Hashing,Easy,DSA\n" +
		"Rank Scores,https://leetcode.com/problems/rank-scores/,Window Functions,Ranking,Medium,SQL\n"

	w = env.upload("/api/admin/problems/import?dryRun=true", env.adminToken, "problems.csv", good)
	if w.Code != http.StatusOK {
		t.Fatalf("expected dry run 200, got %d", w.Code)
	}
	if problems, _ := env.catalog.Problems(context.Background()); len(problems) != 0 {
		t.Fatalf("dry run must not write, got %d problems", len(problems))
	}

	w = env.upload("/api/admin/problems/import", env.adminToken, "problems.csv", good)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if problems, _ := env.catalog.Problems(context.Background()); len(problems) != 2 {
		t.Fatalf("expected 2 imported problems, got %d", len(problems))
	}

	if w := env.upload("/api/admin/problems/import", env.adminToken, "problems.txt", good); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported format, got %d", w.Code)
	}
}

func TestBatchRoutes(t *testing.T) {
	env := newTestEnv(t)
	hard := env.addProblem(t, "Trapping Rain Water", "Arrays", domain.DifficultyHard, "DSA")
	easy := env.addProblem(t, "Two Sum", "Arrays", domain.DifficultyEasy, "DSA")
	env.addProblem(t, "Coin Change", "DP", domain.DifficultyMedium, "DSA")

	w := env.do(http.MethodPost, "/api/admin/problems/sort?by=difficulty", env.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	problems, _ := env.catalog.Problems(context.Background())
	if problems[0].ID != easy.ID || problems[2].ID != hard.ID {
		t.Fatalf("unexpected order after sort: %v", problems)
	}

	if w := env.do(http.MethodPost, "/api/admin/problems/sort?by=color", env.adminToken, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = env.do(http.MethodPost, "/api/admin/problems/reorder", env.adminToken, map[string]string{"id": hard.ID, "before_id": easy.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	problems, _ = env.catalog.Problems(context.Background())
	if problems[0].ID != hard.ID {
		t.Fatalf("expected moved problem first, got %v", problems[0].Title)
	}

	w = env.do(http.MethodPost, "/api/admin/problems/delete", env.adminToken, map[string][]string{"ids": {hard.ID, "missing", easy.ID}})
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", w.Code, w.Body.String())
	}
	var result domain.BatchResult
	decode(t, w, &result)
	if result.Applied != 2 || result.Failed != 1 || result.Items[1].OK {
		t.Fatalf("unexpected batch result: %+v", result)
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(http.MethodDelete, "/api/users/me", env.userToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/users/me", env.userToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCatalogStream(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/catalog/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var msg struct {
		Type    string               `json:"type"`
		Payload *domain.CatalogEvent `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "hello" {
		t.Fatalf("expected hello, got %+v %v", msg, err)
	}

	p := env.addProblem(t, "Two Sum", "Arrays", domain.DifficultyEasy, "DSA")

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "catalog" || msg.Payload == nil || msg.Payload.Type != domain.CatalogEventCreated {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.Payload.ProblemIDs) != 1 || msg.Payload.ProblemIDs[0] != p.ID {
		t.Fatalf("unexpected ids: %v", msg.Payload.ProblemIDs)
	}
	if env.hub.Clients() != 1 {
		t.Fatalf("expected 1 client, got %d", env.hub.Clients())
	}
}
