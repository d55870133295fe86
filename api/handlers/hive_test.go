package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive"
	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/analytics"
	"github.com/BaSui01/agenthive/hive/executor"
	"github.com/BaSui01/agenthive/hive/resource"
	"github.com/BaSui01/agenthive/hive/task"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

func newTestHive(t *testing.T, sampler resource.Sampler) *hive.Coordinator {
	t.Helper()
	cfg := hive.DefaultConfig()
	cfg.Processes = hive.ProcessConfig{
		Distribution: 5 * time.Millisecond,
		Learning:     20 * time.Millisecond,
		Swarm:        20 * time.Millisecond,
		Metrics:      20 * time.Millisecond,
		Resources:    20 * time.Millisecond,
	}
	cfg.Executor.Timeout = time.Second

	body := executor.BodyFunc(func(ctx context.Context, tk *task.Task, a *agent.Agent) (string, error) {
		return "done", nil
	})
	c, err := hive.New(cfg, zap.NewNop(), hive.WithSampler(sampler), hive.WithBody(body))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Shutdown(context.Background())
		_ = c.Close()
	})
	return c
}

func newTestMux(t *testing.T, c *hive.Coordinator) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewHiveHandler(c, zap.NewNop()).Register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func createAgent(t *testing.T, mux http.Handler, body string) string {
	t.Helper()
	w := do(t, mux, http.MethodPost, "/api/v1/agents", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created CreatedResponse
	decodeData(t, w, &created)
	return created.ID
}

// =============================================================================
// 🧪 Agent 端点
// =============================================================================

func TestHiveHandler_CreateAndGetAgent(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))

	id := createAgent(t, mux, `{"type":"worker","name":"w1","capabilities":[{"name":"io","proficiency":0.7}]}`)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	w := do(t, mux, http.MethodGet, "/api/v1/agents/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
	}
	decodeData(t, w, &got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "w1", got.Name)
	assert.Equal(t, string(agent.StateIdle), got.State)
}

func TestHiveHandler_CreateAgent_Errors(t *testing.T) {
	tests := []struct {
		name       string
		sampler    resource.Sampler
		body       string
		wantStatus int
	}{
		{"unknown type", resource.Fixed(0.2, 0.3), `{"type":"wizard"}`, http.StatusBadRequest},
		{"not an object", resource.Fixed(0.2, 0.3), `[1,2]`, http.StatusBadRequest},
		{"cpu over threshold", resource.Fixed(0.99, 0.3), `{"type":"worker"}`, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(t, newTestHive(t, tt.sampler))
			w := do(t, mux, http.MethodPost, "/api/v1/agents", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestHiveHandler_ListAgents_Filters(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))
	createAgent(t, mux, `{"type":"worker","name":"w"}`)
	createAgent(t, mux, `{"type":"learner","name":"l"}`)

	var all []map[string]any
	decodeData(t, do(t, mux, http.MethodGet, "/api/v1/agents", ""), &all)
	assert.Len(t, all, 2)

	var learners []map[string]any
	decodeData(t, do(t, mux, http.MethodGet, "/api/v1/agents?type=learner", ""), &learners)
	require.Len(t, learners, 1)
	assert.Equal(t, "l", learners[0]["name"])

	var failed []map[string]any
	decodeData(t, do(t, mux, http.MethodGet, "/api/v1/agents?state=failed", ""), &failed)
	assert.Empty(t, failed)
}

func TestHiveHandler_RemoveAgent(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))
	id := createAgent(t, mux, `{"type":"worker"}`)

	w := do(t, mux, http.MethodDelete, "/api/v1/agents/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, mux, http.MethodGet, "/api/v1/agents/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, mux, http.MethodDelete, "/api/v1/agents/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHiveHandler_GetAgent_BadID(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))
	w := do(t, mux, http.MethodGet, "/api/v1/agents/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHiveHandler_TopPerformers(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))
	createAgent(t, mux, `{"type":"worker"}`)

	w := do(t, mux, http.MethodGet, "/api/v1/agents/top?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, mux, http.MethodGet, "/api/v1/agents/top?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// 🧪 任务端点
// =============================================================================

func TestHiveHandler_CreateTask_AndSearch(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))

	w := do(t, mux, http.MethodPost, "/api/v1/tasks",
		`{"description":"rotate the nightly backup archives","type":"io","priority":"high"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created CreatedResponse
	decodeData(t, w, &created)

	w = do(t, mux, http.MethodGet, "/api/v1/tasks/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, w, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, string(task.StatusPending), got.Status)

	var hits []map[string]any
	decodeData(t, do(t, mux, http.MethodGet, "/api/v1/tasks/search?q=backup", ""), &hits)
	require.Len(t, hits, 1)
	assert.Equal(t, created.ID, hits[0]["id"])

	var pending []map[string]any
	decodeData(t, do(t, mux, http.MethodGet, "/api/v1/tasks?status=pending", ""), &pending)
	assert.Len(t, pending, 1)

	var completed []map[string]any
	decodeData(t, do(t, mux, http.MethodGet, "/api/v1/tasks?status=completed", ""), &completed)
	assert.Empty(t, completed)
}

func TestHiveHandler_CreateTask_Validation(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))

	w := do(t, mux, http.MethodPost, "/api/v1/tasks", `{"type":"io"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "description", resp.Error.Field)
}

func TestHiveHandler_SearchTasks_RequiresQuery(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))
	w := do(t, mux, http.MethodGet, "/api/v1/tasks/search?q=%20", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHiveHandler_GetTask_NotFound(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))
	w := do(t, mux, http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHiveHandler_TaskCompletesInBackground(t *testing.T) {
	c := newTestHive(t, resource.Fixed(0.2, 0.3))
	mux := newTestMux(t, c)
	createAgent(t, mux, `{"type":"worker","capabilities":[{"name":"io","proficiency":0.8}]}`)

	w := do(t, mux, http.MethodPost, "/api/v1/tasks",
		`{"description":"copy files","type":"io","required_capabilities":[{"name":"io","min_proficiency":0.3}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreatedResponse
	decodeData(t, w, &created)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		var got struct {
			Status string `json:"status"`
		}
		w := do(t, mux, http.MethodGet, "/api/v1/tasks/"+created.ID, "")
		if w.Code != http.StatusOK {
			return false
		}
		decodeData(t, w, &got)
		return got.Status == string(task.StatusCompleted)
	}, 2*time.Second, 10*time.Millisecond)
}

// =============================================================================
// 🧪 状态与分析端点
// =============================================================================

func TestHiveHandler_StatusAndAnalytics(t *testing.T) {
	c := newTestHive(t, resource.Fixed(0.2, 0.3))
	mux := newTestMux(t, c)
	createAgent(t, mux, `{"type":"coordinator"}`)

	var status struct {
		HiveID  string `json:"hive_id"`
		Metrics struct {
			TotalAgents int `json:"total_agents"`
		} `json:"metrics"`
	}
	decodeData(t, do(t, mux, http.MethodGet, "/api/v1/status", ""), &status)
	assert.Equal(t, c.ID().String(), status.HiveID)
	assert.Equal(t, 1, status.Metrics.TotalAgents)

	w := do(t, mux, http.MethodGet, "/api/v1/analytics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, mux, http.MethodGet, "/api/v1/trends", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHiveHandler_SystemHealth(t *testing.T) {
	c := newTestHive(t, resource.Fixed(0.2, 0.3))
	mux := newTestMux(t, c)

	w := do(t, mux, http.MethodGet, "/api/v1/health", "")
	want := http.StatusOK
	if c.AssessSystemHealth().Level == analytics.HealthCritical {
		want = http.StatusServiceUnavailable
	}
	assert.Equal(t, want, w.Code)

	var report struct {
		Level string  `json:"health_level"`
		Score float64 `json:"health_score"`
	}
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.NotEmpty(t, report.Level)
	assert.GreaterOrEqual(t, report.Score, 0.0)
}

// =============================================================================
// 🧪 运维端点
// =============================================================================

func TestHiveHandler_ResizeQueue(t *testing.T) {
	c := newTestHive(t, resource.Fixed(0.2, 0.3))
	mux := newTestMux(t, c)

	w := do(t, mux, http.MethodPut, "/api/v1/queue/capacity", `{"capacity":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got QueueCapacityRequest
	decodeData(t, w, &got)
	assert.Equal(t, 1, got.Capacity)
	assert.Equal(t, 1, c.GetStatus(context.Background()).Tasks.Queue.Capacity)

	w = do(t, mux, http.MethodPost, "/api/v1/tasks", `{"description":"first","type":"io"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, mux, http.MethodPost, "/api/v1/tasks", `{"description":"second","type":"io"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, mux, http.MethodPut, "/api/v1/queue/capacity", `{"capacity":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, mux, http.MethodPut, "/api/v1/queue/capacity", `{"capacity":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHiveHandler_ResetBreakers(t *testing.T) {
	mux := newTestMux(t, newTestHive(t, resource.Fixed(0.2, 0.3)))

	w := do(t, mux, http.MethodPost, "/api/v1/breakers/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got BreakerResetResponse
	decodeData(t, w, &got)
	assert.Empty(t, got.Reset)
}
