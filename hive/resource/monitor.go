package resource

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMemoryLimitMB 未配置内存上限时使用的分母
const DefaultMemoryLimitMB = 8192

// AlertThreshold 使用率超过该值时发出资源告警
const AlertThreshold = 0.9

// HardwareClass 按核数与内存划分的硬件等级
type HardwareClass string

const (
	HardwareEdge    HardwareClass = "edge_device"
	HardwareDesktop HardwareClass = "desktop"
	HardwareServer  HardwareClass = "server"
	HardwareCloud   HardwareClass = "cloud"
)

// Profile 资源配置档
type Profile struct {
	Name           string        `json:"profile_name"`
	MaxAgents      int           `json:"max_agents"`
	BatchSize      int           `json:"batch_size"`
	UpdateInterval time.Duration `json:"update_interval"`
}

// Classify 根据核数与内存上限划分硬件等级
func Classify(cores int, memoryMB float64) HardwareClass {
	switch {
	case cores <= 2 && memoryMB <= 2000:
		return HardwareEdge
	case cores <= 8 && memoryMB <= 16000:
		return HardwareDesktop
	case cores <= 32 && memoryMB <= 64000:
		return HardwareServer
	default:
		return HardwareCloud
	}
}

// ProfileFor 硬件等级对应的最优配置档
func ProfileFor(class HardwareClass) Profile {
	switch class {
	case HardwareEdge:
		return Profile{Name: "Edge Optimized", MaxAgents: 5, BatchSize: 1, UpdateInterval: 10 * time.Second}
	case HardwareDesktop:
		return Profile{Name: "Desktop Balanced", MaxAgents: 20, BatchSize: 4, UpdateInterval: 5 * time.Second}
	case HardwareServer:
		return Profile{Name: "Server Performance", MaxAgents: 100, BatchSize: 16, UpdateInterval: time.Second}
	default:
		return Profile{Name: "Cloud Scalable", MaxAgents: 500, BatchSize: 32, UpdateInterval: 500 * time.Millisecond}
	}
}

// Alert 超过阈值的资源
type Alert struct {
	Resource string  `json:"resource"`
	Usage    float64 `json:"usage"`
}

// Info 资源状态汇总
type Info struct {
	Usage         Usage         `json:"usage"`
	Profile       Profile       `json:"profile"`
	HardwareClass HardwareClass `json:"hardware_class"`
}

// =============================================================================
// 📟 资源监控
// =============================================================================

// Monitor 保存最近一次采样，并按负载自动调整配置档
type Monitor struct {
	sampler      Sampler
	class        HardwareClass
	autoOptimize bool
	logger       *zap.Logger

	mu      sync.RWMutex
	latest  Usage
	profile Profile
}

// NewMonitor 创建监控器。sampler 为 nil 时使用进程采样器。
func NewMonitor(sampler Sampler, memoryLimitMB float64, autoOptimize bool, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if memoryLimitMB <= 0 {
		memoryLimitMB = DefaultMemoryLimitMB
	}
	if sampler == nil {
		sampler = NewProcessSampler(memoryLimitMB)
	}
	class := Classify(runtime.NumCPU(), memoryLimitMB)
	return &Monitor{
		sampler:      sampler,
		class:        class,
		autoOptimize: autoOptimize,
		profile:      ProfileFor(class),
		logger:       logger.With(zap.String("component", "resource_monitor")),
	}
}

// Update 采样并返回超过阈值的告警
func (m *Monitor) Update(ctx context.Context) (Usage, []Alert, error) {
	u, err := m.sampler.Sample(ctx)
	if err != nil {
		return Usage{}, nil, err
	}

	m.mu.Lock()
	m.latest = u
	if m.autoOptimize {
		m.optimizeLocked(u)
	}
	m.mu.Unlock()

	var alerts []Alert
	if u.CPU > AlertThreshold {
		alerts = append(alerts, Alert{Resource: "cpu", Usage: u.CPU})
	}
	if u.Memory > AlertThreshold {
		alerts = append(alerts, Alert{Resource: "memory", Usage: u.Memory})
	}
	return u, alerts, nil
}

// Latest 最近一次采样
func (m *Monitor) Latest() Usage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Profile 当前配置档
func (m *Monitor) Profile() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// SetProfile 手动设置配置档
func (m *Monitor) SetProfile(p Profile) {
	m.mu.Lock()
	m.profile = p
	m.mu.Unlock()
	m.logger.Info("resource profile updated", zap.String("profile", p.Name))
}

// Info 资源状态汇总
func (m *Monitor) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{Usage: m.latest, Profile: m.profile, HardwareClass: m.class}
}

// optimizeLocked 高负载时收缩，空闲时逐步恢复到最优配置档
func (m *Monitor) optimizeLocked(u Usage) {
	optimal := ProfileFor(m.class)
	switch {
	case u.CPU > 0.8 || u.Memory > 0.85:
		m.profile.MaxAgents = int(float64(m.profile.MaxAgents) * 0.8)
		m.profile.UpdateInterval = time.Duration(float64(m.profile.UpdateInterval) * 1.5)
		m.logger.Warn("system under stress, reducing load",
			zap.Int("max_agents", m.profile.MaxAgents),
			zap.Duration("update_interval", m.profile.UpdateInterval))
	case u.CPU < 0.5 && u.Memory < 0.6 && m.profile.MaxAgents < optimal.MaxAgents:
		m.profile.MaxAgents = min(m.profile.MaxAgents+5, optimal.MaxAgents)
		m.profile.UpdateInterval = max(m.profile.UpdateInterval-500*time.Millisecond, optimal.UpdateInterval)
	}
}
