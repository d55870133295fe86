package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive"
	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/analytics"
	"github.com/BaSui01/agenthive/hive/bus"
	"github.com/BaSui01/agenthive/hive/registry"
	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 🐝 蜂巢 API Handler
// =============================================================================

// Hive 蜂巢协调器对 HTTP 层暴露的操作，由 *hive.Coordinator 实现
type Hive interface {
	CreateAgent(ctx context.Context, raw []byte) (uuid.UUID, error)
	RemoveAgent(ctx context.Context, id uuid.UUID) error
	GetAgent(ctx context.Context, id uuid.UUID) (*agent.Agent, error)
	GetAgents(ctx context.Context) []*agent.Agent
	TopPerformers(limit int) []registry.Performer

	CreateTask(ctx context.Context, raw []byte) (uuid.UUID, error)
	GetTask(id uuid.UUID) (*task.Task, error)
	GetTasks() []*task.Task
	SearchTasks(ctx context.Context, query string, limit int) ([]*task.Task, error)

	GetStatus(ctx context.Context) hive.Status
	GetAnalytics() hive.Analytics
	AssessSystemHealth() analytics.HealthReport
	GetPerformanceTrends() analytics.Trends

	ResizeQueue(capacity int) error
	ResetCircuitBreakers() []string

	Running() bool
	Bus() *bus.Bus
}

var _ Hive = (*hive.Coordinator)(nil)

// HiveHandler Agent、任务、状态与分析端点
type HiveHandler struct {
	hive   Hive
	logger *zap.Logger
}

// NewHiveHandler 创建蜂巢 Handler
func NewHiveHandler(h Hive, logger *zap.Logger) *HiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HiveHandler{hive: h, logger: logger.With(zap.String("handler", "hive"))}
}

// Register 在 mux 上注册全部蜂巢路由
func (h *HiveHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/agents", h.HandleCreateAgent)
	mux.HandleFunc("GET /api/v1/agents", h.HandleListAgents)
	mux.HandleFunc("GET /api/v1/agents/top", h.HandleTopPerformers)
	mux.HandleFunc("GET /api/v1/agents/{id}", h.HandleGetAgent)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", h.HandleRemoveAgent)

	mux.HandleFunc("POST /api/v1/tasks", h.HandleCreateTask)
	mux.HandleFunc("GET /api/v1/tasks", h.HandleListTasks)
	mux.HandleFunc("GET /api/v1/tasks/search", h.HandleSearchTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.HandleGetTask)

	mux.HandleFunc("GET /api/v1/status", h.HandleStatus)
	mux.HandleFunc("GET /api/v1/analytics", h.HandleAnalytics)
	mux.HandleFunc("GET /api/v1/health", h.HandleSystemHealth)
	mux.HandleFunc("GET /api/v1/trends", h.HandleTrends)

	mux.HandleFunc("PUT /api/v1/queue/capacity", h.HandleResizeQueue)
	mux.HandleFunc("POST /api/v1/breakers/reset", h.HandleResetBreakers)
}

// CreatedResponse 创建接口的返回体
type CreatedResponse struct {
	ID string `json:"id"`
}

// =============================================================================
// 🤖 Agent
// =============================================================================

// HandleCreateAgent 创建 Agent，资源超限时返回 503
// @Router /api/v1/agents [post]
func (h *HiveHandler) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	body, ok := ReadJSONBody(w, r, h.logger)
	if !ok {
		return
	}
	id, err := h.hive.CreateAgent(r.Context(), body)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccessStatus(w, r, http.StatusCreated, CreatedResponse{ID: id.String()})
}

// HandleListAgents 列出 Agent，可用 ?type=（kind）与 ?state= 过滤
// @Router /api/v1/agents [get]
func (h *HiveHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	state := r.URL.Query().Get("state")

	agents := h.hive.GetAgents(r.Context())
	result := make([]*agent.Agent, 0, len(agents))
	for _, a := range agents {
		if typ != "" && !strings.EqualFold(string(a.Type.Kind), typ) {
			continue
		}
		if state != "" && !strings.EqualFold(string(a.State), state) {
			continue
		}
		result = append(result, a)
	}
	WriteSuccess(w, r, result)
}

// @Router /api/v1/agents/{id} [get]
func (h *HiveHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	a, err := h.hive.GetAgent(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, a)
}

// @Router /api/v1/agents/{id} [delete]
func (h *HiveHandler) HandleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.hive.RemoveAgent(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTopPerformers 按成功率排序的 Agent，?limit= 默认 10
// @Router /api/v1/agents/top [get]
func (h *HiveHandler) HandleTopPerformers(w http.ResponseWriter, r *http.Request) {
	limit, err := QueryLimit(r, 10, 100)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, h.hive.TopPerformers(limit))
}

// =============================================================================
// 📋 任务
// =============================================================================

// @Router /api/v1/tasks [post]
func (h *HiveHandler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	body, ok := ReadJSONBody(w, r, h.logger)
	if !ok {
		return
	}
	id, err := h.hive.CreateTask(r.Context(), body)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccessStatus(w, r, http.StatusCreated, CreatedResponse{ID: id.String()})
}

// HandleListTasks 列出任务，可用 ?status= 过滤
// @Router /api/v1/tasks [get]
func (h *HiveHandler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	tasks := h.hive.GetTasks()
	if status == "" {
		WriteSuccess(w, r, tasks)
		return
	}
	result := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if strings.EqualFold(string(t.Status), status) {
			result = append(result, t)
		}
	}
	WriteSuccess(w, r, result)
}

// @Router /api/v1/tasks/{id} [get]
func (h *HiveHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	t, err := h.hive.GetTask(id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, t)
}

// HandleSearchTasks 全文检索任务，?q= 必填，?limit= 默认 20
// @Router /api/v1/tasks/search [get]
func (h *HiveHandler) HandleSearchTasks(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		WriteError(w, r, types.NewValidationError("q", "is required"), h.logger)
		return
	}
	limit, err := QueryLimit(r, 20, 200)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	tasks, err := h.hive.SearchTasks(r.Context(), q, limit)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, tasks)
}

// =============================================================================
// 📊 状态与分析
// =============================================================================

// @Router /api/v1/status [get]
func (h *HiveHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.hive.GetStatus(r.Context()))
}

// @Router /api/v1/analytics [get]
func (h *HiveHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.hive.GetAnalytics())
}

// HandleSystemHealth 系统健康评估，critical 时返回 503
// @Router /api/v1/health [get]
func (h *HiveHandler) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	report := h.hive.AssessSystemHealth()
	status := http.StatusOK
	if report.Level == analytics.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	WriteSuccessStatus(w, r, status, report)
}

// @Router /api/v1/trends [get]
func (h *HiveHandler) HandleTrends(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.hive.GetPerformanceTrends())
}

// =============================================================================
// 🛠️ 运维
// =============================================================================

// QueueCapacityRequest 调整队列容量的请求体
type QueueCapacityRequest struct {
	Capacity int `json:"capacity"`
}

// BreakerResetResponse 被重置的任务类型
type BreakerResetResponse struct {
	Reset []string `json:"reset"`
}

// @Router /api/v1/queue/capacity [put]
func (h *HiveHandler) HandleResizeQueue(w http.ResponseWriter, r *http.Request) {
	body, ok := ReadJSONBody(w, r, h.logger)
	if !ok {
		return
	}
	var req QueueCapacityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "invalid JSON body", h.logger)
		return
	}
	if err := h.hive.ResizeQueue(req.Capacity); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, req)
}

// HandleResetBreakers 手动恢复全部熔断器
// @Router /api/v1/breakers/reset [post]
func (h *HiveHandler) HandleResetBreakers(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, BreakerResetResponse{Reset: h.hive.ResetCircuitBreakers()})
}
