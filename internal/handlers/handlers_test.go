package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/EchoLayerS/EchoLayer/internal/graph"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

func pipelineEdge(contentID, source, target string, at time.Time) graph.Event {
	return graph.Event{
		ContentID:       contentID,
		SourceUserID:    source,
		TargetUserID:    target,
		SourcePlatform:  "mirror",
		TargetPlatform:  "mirror",
		InteractionType: "share",
		Strength:        0.8,
		Timestamp:       at,
	}
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetLatestScore(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	w := doRequest(t, router, "GET", "/v1/scores/content-10", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unscored content, got %d", w.Code)
	}

	history.Append(models.AttentionScore{
		ContentID:    "content-10",
		ODF:          0.8,
		AWR:          0.6,
		TPM:          0.5,
		QF:           0.7,
		Composite:    0.66,
		CalculatedAt: time.Now(),
	})

	w = doRequest(t, router, "GET", "/v1/scores/content-10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp LatestScoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Score.ContentID != "content-10" || resp.Score.Version != 1 {
		t.Errorf("unexpected score payload: %+v", resp.Score)
	}
}

func TestGetScoreHistoryFallsBackToMemory(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	history.Append(models.AttentionScore{ContentID: "content-11", Composite: 0.4, CalculatedAt: time.Now()})
	history.Append(models.AttentionScore{ContentID: "content-11", Composite: 0.6, CalculatedAt: time.Now()})

	w := doRequest(t, router, "GET", "/v1/scores/content-11/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ScoreHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 versions, got %d", resp.Count)
	}
	if resp.Scores[0].Version != 1 || resp.Scores[1].Version != 2 {
		t.Errorf("versions out of order: %+v", resp.Scores)
	}
}

func TestGetTraversalBoundsDepth(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	propGraph.SetContentScore("content-12", 0.7)
	propGraph.SeedNode("alice", "mirror", 0.8, 100, 0.6)
	propGraph.SeedNode("bob", "mirror", 0.5, 0, 0.5)
	propGraph.SeedNode("carol", "mirror", 0.5, 0, 0.5)
	now := time.Now()
	for _, hop := range [][2]string{{"alice", "bob"}, {"bob", "carol"}} {
		if _, err := propGraph.RecordEvent(pipelineEdge("content-12", hop[0], hop[1], now)); err != nil {
			t.Fatalf("failed to record edge %v: %v", hop, err)
		}
	}

	w := doRequest(t, router, "GET", "/v1/graph/traverse/alice@mirror?depth=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp TraversalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("depth 1 from alice should reach 2 nodes, got %d: %v", resp.Count, resp.Nodes)
	}

	w = doRequest(t, router, "GET", "/v1/graph/traverse/alice@mirror?depth=0", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-positive depth, got %d", w.Code)
	}
}

func TestGetPoolStatus(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	w := doRequest(t, router, "GET", "/v1/rewards/pool", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var status models.PoolStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Period != testPeriod {
		t.Errorf("expected period %s, got %s", testPeriod, status.Period)
	}
	if status.DeferredDepth != 0 {
		t.Errorf("expected empty deferred queue, got %d", status.DeferredDepth)
	}
}

func TestGetUserRewardsNotFound(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	w := doRequest(t, router, "GET", "/v1/rewards/users/nobody", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", w.Code)
	}
}

func TestGetLeaderboardEmpty(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	w := doRequest(t, router, "GET", "/v1/rewards/leaderboard", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp LeaderboardResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("expected empty leaderboard, got %d entries", resp.Count)
	}
}

func TestResetPoolValidation(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	w := doRequest(t, router, "POST", "/v1/rewards/pool/reset", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing period, got %d", w.Code)
	}

	w = doRequest(t, router, "POST", "/v1/rewards/pool/reset", `{"period":"july"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed period, got %d", w.Code)
	}

	w = doRequest(t, router, "POST", "/v1/rewards/pool/reset", `{"period":"2025-07-02"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp PoolResetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Period != "2025-07-02" || resp.Drained != 0 {
		t.Errorf("unexpected reset response: %+v", resp)
	}
	if allocator.PoolStatus().Period != "2025-07-02" {
		t.Errorf("pool period not advanced: %s", allocator.PoolStatus().Period)
	}
}

func TestGetConfigExposesTunables(t *testing.T) {
	setupPipeline(t)
	router := setupRouter(t)

	w := doRequest(t, router, "GET", "/v1/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.BoostThreshold != 0.8 {
		t.Errorf("expected boost threshold 0.8, got %v", resp.BoostThreshold)
	}
	if resp.Weights.Sum() != 1.0 {
		t.Errorf("expected weights summing to 1, got %v", resp.Weights.Sum())
	}
	if resp.DailyBudget != "1000" {
		t.Errorf("expected daily budget 1000, got %s", resp.DailyBudget)
	}
}
