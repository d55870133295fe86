package analytics

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/BaSui01/agenthive/hive/task"
)

// =============================================================================
// 📊 分析结果
// =============================================================================

// QueueSizes 两类队列的当前长度
type QueueSizes struct {
	Legacy       int `json:"legacy"`
	WorkStealing int `json:"work_stealing"`
}

// QueueEfficiency 队列分布效率
type QueueEfficiency struct {
	LegacyQueueSize       int     `json:"legacy_queue_size"`
	WorkStealingQueueSize int     `json:"work_stealing_queue_size"`
	TotalQueued           int     `json:"total_queued"`
	DistributionBalance   float64 `json:"distribution_balance"`
	EfficiencyScore       float64 `json:"efficiency_score"`
}

// Workload Agent 负载分布
type Workload struct {
	TotalAgents          int            `json:"total_agents"`
	AverageTasksPerAgent float64        `json:"average_tasks_per_agent"`
	BalanceScore         float64        `json:"workload_balance_score"`
	Distribution         map[string]int `json:"agent_task_distribution"`
}

// AgentPerformance 单个 Agent 在执行历史中的表现
type AgentPerformance struct {
	AgentID         uuid.UUID `json:"agent_id"`
	TotalTasks      int       `json:"total_tasks"`
	SuccessfulTasks int       `json:"successful_tasks"`
	SuccessRate     float64   `json:"success_rate"`
	AverageTimeMs   float64   `json:"average_execution_time_ms"`
}

// Snapshot 完整的分析快照
type Snapshot struct {
	Execution          Performance         `json:"execution_statistics"`
	Recent             RecentPerformance   `json:"recent_performance"`
	StatusDistribution map[task.Status]int `json:"status_distribution"`
	AgentPerformance   []AgentPerformance  `json:"agent_performance"`
	QueueEfficiency    QueueEfficiency     `json:"queue_efficiency"`
	Workload           Workload            `json:"workload_distribution"`
	TotalTasksTracked  int                 `json:"total_tasks_tracked"`
	HistorySize        int                 `json:"execution_history_size"`
}

// Analytics 汇总当前全部分析数据
func (tr *Tracker) Analytics(q QueueSizes) Snapshot {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	status := make(map[task.Status]int)
	for _, m := range tr.tasks {
		status[m.Status]++
	}

	return Snapshot{
		Execution:          tr.performanceLocked(),
		Recent:             tr.recentLocked(),
		StatusDistribution: status,
		AgentPerformance:   tr.agentPerformanceLocked(),
		QueueEfficiency:    EfficiencyOf(q),
		Workload:           tr.workloadLocked(),
		TotalTasksTracked:  len(tr.tasks),
		HistorySize:        len(tr.history),
	}
}

// EfficiencyOf 计算队列效率，空队列视为完全高效
func EfficiencyOf(q QueueSizes) QueueEfficiency {
	total := q.Legacy + q.WorkStealing
	e := QueueEfficiency{
		LegacyQueueSize:       q.Legacy,
		WorkStealingQueueSize: q.WorkStealing,
		TotalQueued:           total,
	}
	if total > 0 {
		legacy := float64(q.Legacy) / float64(total)
		ws := float64(q.WorkStealing) / float64(total)
		e.DistributionBalance = math.Abs(legacy - ws)
	}
	e.EfficiencyScore = 1 - math.Min(1, e.DistributionBalance)
	return e
}

// BalanceScore 负载不均衡度：各计数与均值的平均相对偏差，0 表示完全均衡
func BalanceScore(counts map[uuid.UUID]int) float64 {
	if len(counts) == 0 {
		return 0
	}
	sum := 0
	for _, c := range counts {
		sum += c
	}
	avg := float64(sum) / float64(len(counts))
	if avg == 0 {
		return 0
	}
	var dev float64
	for _, c := range counts {
		dev += math.Abs(float64(c)-avg) / avg
	}
	return dev / float64(len(counts))
}

func (tr *Tracker) agentCountsLocked() map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, r := range tr.history {
		counts[r.AgentID]++
	}
	return counts
}

func (tr *Tracker) workloadLocked() Workload {
	counts := tr.agentCountsLocked()
	w := Workload{
		TotalAgents:  len(counts),
		BalanceScore: BalanceScore(counts),
		Distribution: make(map[string]int, len(counts)),
	}
	sum := 0
	for id, c := range counts {
		w.Distribution[id.String()] = c
		sum += c
	}
	if len(counts) > 0 {
		w.AverageTasksPerAgent = float64(sum) / float64(len(counts))
	}
	return w
}

func (tr *Tracker) agentPerformanceLocked() []AgentPerformance {
	type acc struct {
		total, ok int
		ms        int64
	}
	by := make(map[uuid.UUID]*acc)
	for _, r := range tr.history {
		a, exists := by[r.AgentID]
		if !exists {
			a = &acc{}
			by[r.AgentID] = a
		}
		a.total++
		a.ms += r.ExecutionTimeMs
		if r.Success {
			a.ok++
		}
	}
	out := make([]AgentPerformance, 0, len(by))
	for id, a := range by {
		out = append(out, AgentPerformance{
			AgentID:         id,
			TotalTasks:      a.total,
			SuccessfulTasks: a.ok,
			SuccessRate:     float64(a.ok) / float64(a.total),
			AverageTimeMs:   float64(a.ms) / float64(a.total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTasks != out[j].TotalTasks {
			return out[i].TotalTasks > out[j].TotalTasks
		}
		return out[i].AgentID.String() < out[j].AgentID.String()
	})
	return out
}

// =============================================================================
// 🩺 健康评估
// =============================================================================

// HealthLevel 系统健康等级
type HealthLevel string

const (
	HealthExcellent HealthLevel = "excellent"
	HealthGood      HealthLevel = "good"
	HealthFair      HealthLevel = "fair"
	HealthPoor      HealthLevel = "poor"
	HealthCritical  HealthLevel = "critical"
)

const (
	recLowSuccess   = "Task success rate is below 80%. Consider reviewing agent capabilities and task requirements."
	recLowQueue     = "Queue efficiency is suboptimal. Consider optimizing work-stealing queue configuration."
	recImbalanced   = "Agent workload is imbalanced. Consider redistributing tasks or adding more agents."
	recAllGood      = "System is performing well. Continue monitoring for optimal performance."
	successFloor    = 0.8
	efficiencyFloor = 0.7
	imbalanceCeil   = 0.3
)

// HealthReport 健康评估结果
type HealthReport struct {
	Level           HealthLevel `json:"health_level"`
	Score           float64     `json:"health_score"`
	SuccessRate     float64     `json:"success_rate"`
	QueueEfficiency float64     `json:"queue_efficiency"`
	WorkloadBalance float64     `json:"workload_balance"`
	Recommendations []string    `json:"recommendations"`
}

// LevelFor 分数到等级的映射
func LevelFor(score float64) HealthLevel {
	switch {
	case score >= 0.9:
		return HealthExcellent
	case score >= 0.75:
		return HealthGood
	case score >= 0.6:
		return HealthFair
	case score >= 0.4:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// Recommendations 每个越界阈值给出一条建议
func Recommendations(successRate, efficiency, imbalance float64) []string {
	var recs []string
	if successRate < successFloor {
		recs = append(recs, recLowSuccess)
	}
	if efficiency < efficiencyFloor {
		recs = append(recs, recLowQueue)
	}
	if imbalance > imbalanceCeil {
		recs = append(recs, recImbalanced)
	}
	if len(recs) == 0 {
		recs = append(recs, recAllGood)
	}
	return recs
}

// AssessSystemHealth 综合成功率、队列效率与负载均衡评估健康度
func (tr *Tracker) AssessSystemHealth(q QueueSizes) HealthReport {
	tr.mu.RLock()
	sr := tr.performanceLocked().SuccessRate
	wb := BalanceScore(tr.agentCountsLocked())
	tr.mu.RUnlock()

	qe := EfficiencyOf(q).EfficiencyScore
	score := (sr + qe + (1 - wb)) / 3
	return HealthReport{
		Level:           LevelFor(score),
		Score:           score,
		SuccessRate:     sr,
		QueueEfficiency: qe,
		WorkloadBalance: wb,
		Recommendations: Recommendations(sr, qe, wb),
	}
}

// =============================================================================
// 📉 趋势
// =============================================================================

// Trend 趋势方向
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

const (
	trendWindow     = 20
	trendMinSamples = 5
	trendThreshold  = 0.05
)

// Trends 近期与更早窗口的对比
type Trends struct {
	DataPoints        int      `json:"data_points"`
	RecentSuccessRate *float64 `json:"recent_success_rate,omitempty"`
	OlderSuccessRate  *float64 `json:"older_success_rate,omitempty"`
	Trend             Trend    `json:"trend"`
	Recommendation    string   `json:"recommendation"`
}

// TrendAdvice 趋势对应的建议
func TrendAdvice(t Trend) string {
	switch t {
	case TrendImproving:
		return "Performance is improving. Continue current optimization efforts."
	case TrendDeclining:
		return "Performance is declining. Investigate recent changes and system bottlenecks."
	case TrendStable:
		return "Performance is stable. Monitor for opportunities to further optimize."
	default:
		return "Insufficient data for trend analysis. Continue collecting performance metrics."
	}
}

// PerformanceTrends 最近 20 个结果与之前 20 个结果的成功率对比
func (tr *Tracker) PerformanceTrends() Trends {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	n := len(tr.history)
	if n < trendMinSamples {
		return Trends{
			DataPoints:     n,
			Trend:          TrendInsufficientData,
			Recommendation: "Need more execution history for trend analysis",
		}
	}

	recentStart := max(0, n-trendWindow)
	recent := tr.history[recentStart:]
	older := tr.history[max(0, recentStart-trendWindow):recentStart]
	if len(older) == 0 {
		older = recent
	}

	rs, os := successRate(recent), successRate(older)
	trend := classify(rs-os, trendThreshold)
	return Trends{
		DataPoints:        n,
		RecentSuccessRate: &rs,
		OlderSuccessRate:  &os,
		Trend:             trend,
		Recommendation:    TrendAdvice(trend),
	}
}

func successRate(results []task.ExecutionResult) float64 {
	if len(results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(results))
}

func classify(diff, threshold float64) Trend {
	switch {
	case math.Abs(diff) < threshold:
		return TrendStable
	case diff > 0:
		return TrendImproving
	default:
		return TrendDeclining
	}
}
