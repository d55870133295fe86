package resource

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// Usage 一次采样结果，CPU 与 Memory 为 0..1 的使用率
type Usage struct {
	CPU           float64   `json:"cpu_usage"`
	Memory        float64   `json:"memory_usage"`
	MemoryUsedMB  float64   `json:"memory_used_mb"`
	MemoryLimitMB float64   `json:"memory_limit_mb"`
	Goroutines    int       `json:"goroutines"`
	CPUCores      int       `json:"cpu_cores"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Sampler 资源采样器
type Sampler interface {
	Sample(ctx context.Context) (Usage, error)
}

// SamplerFunc 函数适配器
type SamplerFunc func(ctx context.Context) (Usage, error)

// Sample 实现 Sampler
func (f SamplerFunc) Sample(ctx context.Context) (Usage, error) { return f(ctx) }

// Fixed 返回固定使用率的采样器
func Fixed(cpu, memory float64) Sampler {
	return SamplerFunc(func(context.Context) (Usage, error) {
		return Usage{
			CPU:        clamp01(cpu),
			Memory:     clamp01(memory),
			CPUCores:   runtime.NumCPU(),
			Goroutines: runtime.NumGoroutine(),
			SampledAt:  time.Now().UTC(),
		}, nil
	})
}

// =============================================================================
// 🖥️ 进程采样
// =============================================================================

const (
	metricCPUSeconds    = "process_cpu_seconds_total"
	metricResidentBytes = "process_resident_memory_bytes"
	metricSysBytes      = "go_memstats_sys_bytes"
	metricGoroutines    = "go_goroutines"
)

// ProcessSampler 通过私有 Prometheus 注册表上的进程与 Go 运行时采集器采样。
// CPU 使用率为两次采样之间的 CPU 秒数增量除以墙钟时间与核数之积，首次采样为 0。
type ProcessSampler struct {
	registry    *prometheus.Registry
	memoryLimit float64
	cores       int
	now         func() time.Time

	mu      sync.Mutex
	lastCPU float64
	lastAt  time.Time
}

// NewProcessSampler memoryLimitMB 为计算内存使用率的分母
func NewProcessSampler(memoryLimitMB float64) *ProcessSampler {
	if memoryLimitMB <= 0 {
		memoryLimitMB = DefaultMemoryLimitMB
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return &ProcessSampler{
		registry:    reg,
		memoryLimit: memoryLimitMB,
		cores:       max(runtime.NumCPU(), 1),
		now:         time.Now,
	}
}

// Sample 实现 Sampler
func (s *ProcessSampler) Sample(ctx context.Context) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	families, err := s.registry.Gather()
	if err != nil {
		return Usage{}, fmt.Errorf("gather process metrics: %w", err)
	}
	values := make(map[string]float64, 4)
	for _, mf := range families {
		switch mf.GetName() {
		case metricCPUSeconds, metricResidentBytes, metricSysBytes, metricGoroutines:
			values[mf.GetName()] = firstValue(mf)
		}
	}

	now := s.now()
	usedBytes := values[metricResidentBytes]
	if usedBytes == 0 {
		// 不支持 procfs 的平台退回运行时向系统申请的内存
		usedBytes = values[metricSysBytes]
	}
	usedMB := usedBytes / (1024 * 1024)

	s.mu.Lock()
	cpuSeconds, hasCPU := values[metricCPUSeconds]
	var cpu float64
	if hasCPU && !s.lastAt.IsZero() {
		if wall := now.Sub(s.lastAt).Seconds(); wall > 0 {
			cpu = (cpuSeconds - s.lastCPU) / (wall * float64(s.cores))
		}
	}
	if hasCPU {
		s.lastCPU = cpuSeconds
		s.lastAt = now
	}
	s.mu.Unlock()

	goroutines := int(values[metricGoroutines])
	if goroutines == 0 {
		goroutines = runtime.NumGoroutine()
	}
	return Usage{
		CPU:           clamp01(cpu),
		Memory:        clamp01(usedMB / s.memoryLimit),
		MemoryUsedMB:  usedMB,
		MemoryLimitMB: s.memoryLimit,
		Goroutines:    goroutines,
		CPUCores:      s.cores,
		SampledAt:     now.UTC(),
	}, nil
}

func firstValue(mf *dto.MetricFamily) float64 {
	metrics := mf.GetMetric()
	if len(metrics) == 0 {
		return 0
	}
	m := metrics[0]
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
