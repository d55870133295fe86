package hive

import (
	"time"

	"github.com/BaSui01/agenthive/hive/distributor"
	"github.com/BaSui01/agenthive/hive/executor"
	"github.com/BaSui01/agenthive/hive/queue"
)

// ProcessConfig 后台进程间隔
type ProcessConfig struct {
	Distribution time.Duration `json:"work_distribution" yaml:"work_distribution"`
	Learning     time.Duration `json:"learning" yaml:"learning"`
	Swarm        time.Duration `json:"swarm_coordination" yaml:"swarm_coordination"`
	Metrics      time.Duration `json:"metrics_collection" yaml:"metrics_collection"`
	Resources    time.Duration `json:"resource_monitoring" yaml:"resource_monitoring"`
}

// DefaultProcessConfig 100ms / 30s / 5s / 10s / 5s
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		Distribution: 100 * time.Millisecond,
		Learning:     30 * time.Second,
		Swarm:        5 * time.Second,
		Metrics:      10 * time.Second,
		Resources:    5 * time.Second,
	}
}

// Config 协调器配置
type Config struct {
	// ID 固定蜂巢标识，用于跨进程恢复检查点；为空时随机生成
	ID string `json:"id" yaml:"id"`
	// MaxAgents Agent 数量上限，0 表示不限
	MaxAgents int `json:"max_agents" yaml:"max_agents"`
	// CPUThreshold 超过后拒绝创建 Agent
	CPUThreshold float64 `json:"cpu_threshold" yaml:"cpu_threshold"`
	// MemoryLimitMB 计算内存使用率的分母
	MemoryLimitMB float64 `json:"memory_limit_mb" yaml:"memory_limit_mb"`
	// AutoOptimize 按负载调整资源配置档，并以配置档的 Agent 上限约束创建
	AutoOptimize bool `json:"auto_optimize" yaml:"auto_optimize"`
	// LearningWindow 每轮学习回放的经验数
	LearningWindow int `json:"learning_window" yaml:"learning_window"`
	// TrackerHistory 分析引擎保留的执行结果数
	TrackerHistory int `json:"tracker_history" yaml:"tracker_history"`
	// TrackerRetention 已结束任务指标的保留时长
	TrackerRetention time.Duration `json:"tracker_retention" yaml:"tracker_retention"`
	// BusBuffer 每个订阅者的缓冲区大小
	BusBuffer int `json:"bus_buffer" yaml:"bus_buffer"`
	// IdleEnergyRecovery 每轮群集协调中空闲 Agent 恢复的能量，0 表示不恢复
	IdleEnergyRecovery float64 `json:"idle_energy_recovery" yaml:"idle_energy_recovery"`

	Queue       queue.Config       `json:"queue" yaml:"queue"`
	Distributor distributor.Config `json:"distributor" yaml:"distributor"`
	Executor    executor.Config    `json:"executor" yaml:"executor"`
	Processes   ProcessConfig      `json:"processes" yaml:"processes"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		CPUThreshold:       0.9,
		LearningWindow:     10,
		TrackerHistory:     10000,
		TrackerRetention:   24 * time.Hour,
		BusBuffer:          1024,
		IdleEnergyRecovery: 2,
		Queue:              queue.DefaultConfig(),
		Distributor:        distributor.DefaultConfig(),
		Executor:           executor.DefaultConfig(),
		Processes:          DefaultProcessConfig(),
	}
}

// withDefaults 用默认值补齐未设置的字段
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CPUThreshold <= 0 {
		c.CPUThreshold = def.CPUThreshold
	}
	if c.LearningWindow <= 0 {
		c.LearningWindow = def.LearningWindow
	}
	if c.TrackerHistory <= 0 {
		c.TrackerHistory = def.TrackerHistory
	}
	if c.TrackerRetention <= 0 {
		c.TrackerRetention = def.TrackerRetention
	}
	if c.BusBuffer <= 0 {
		c.BusBuffer = def.BusBuffer
	}
	if c.IdleEnergyRecovery < 0 {
		c.IdleEnergyRecovery = def.IdleEnergyRecovery
	}
	p, dp := &c.Processes, def.Processes
	if p.Distribution <= 0 {
		p.Distribution = dp.Distribution
	}
	if p.Learning <= 0 {
		p.Learning = dp.Learning
	}
	if p.Swarm <= 0 {
		p.Swarm = dp.Swarm
	}
	if p.Metrics <= 0 {
		p.Metrics = dp.Metrics
	}
	if p.Resources <= 0 {
		p.Resources = dp.Resources
	}
	return c
}
