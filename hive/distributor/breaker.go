package distributor

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/types"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	// BreakerClosed 正常分发
	BreakerClosed BreakerState = iota
	// BreakerOpen 暂停该类型任务的分发
	BreakerOpen
	// BreakerHalfOpen 允许有限的探测执行
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText 以名称输出
func (s BreakerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// FailureThreshold 连续失败次数阈值，达到后熔断
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// RecoveryTimeout 熔断后等待进入半开的时间
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	// HalfOpenMaxProbes 半开状态允许的探测次数
	HalfOpenMaxProbes int `json:"half_open_max_probes" yaml:"half_open_max_probes" env:"HALF_OPEN_MAX_PROBES"`
	// SuccessThresholdInHalfOpen 半开状态下连续成功多少次后恢复
	SuccessThresholdInHalfOpen int `json:"success_threshold_in_half_open" yaml:"success_threshold_in_half_open" env:"SUCCESS_THRESHOLD_IN_HALF_OPEN"`
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:           5,
		RecoveryTimeout:            30 * time.Second,
		HalfOpenMaxProbes:          3,
		SuccessThresholdInHalfOpen: 2,
	}
}

// BreakerEvent 熔断器状态变更事件
type BreakerEvent struct {
	TaskType  string       `json:"task_type"`
	OldState  BreakerState `json:"old_state"`
	NewState  BreakerState `json:"new_state"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason"`
	Failures  int          `json:"failures"`
}

// BreakerEventHandler 状态变更回调
type BreakerEventHandler interface {
	OnStateChange(event BreakerEvent)
}

// BreakerEventFunc 函数适配器
type BreakerEventFunc func(event BreakerEvent)

// OnStateChange 实现 BreakerEventHandler
func (f BreakerEventFunc) OnStateChange(event BreakerEvent) { f(event) }

// Breaker 单个任务类型的熔断器
type Breaker struct {
	taskType        string
	config          BreakerConfig
	state           BreakerState
	failures        int
	successes       int
	lastFailureTime time.Time
	probeCount      int
	handler         BreakerEventHandler
	now             func() time.Time
	logger          *zap.Logger
	mu              sync.RWMutex
}

// NewBreaker 创建熔断器
func NewBreaker(taskType string, config BreakerConfig, handler BreakerEventHandler, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		taskType: taskType,
		config:   config,
		state:    BreakerClosed,
		handler:  handler,
		now:      time.Now,
		logger:   logger.With(zap.String("task_type", taskType)),
	}
}

// Permits 不改变状态地判断当前是否可能放行
func (b *Breaker) Permits() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		return b.now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout
	case BreakerHalfOpen:
		return b.probeCount < b.config.HalfOpenMaxProbes
	default:
		return false
	}
}

// AllowRequest 检查并占用一次放行
func (b *Breaker) AllowRequest() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true, nil

	case BreakerOpen:
		elapsed := b.now().Sub(b.lastFailureTime)
		if elapsed >= b.config.RecoveryTimeout {
			b.transitionTo(BreakerHalfOpen, "recovery timeout elapsed")
			b.probeCount = 1
			b.successes = 0
			return true, nil
		}
		return false, types.NewError(types.ErrCircuitOpen,
			fmt.Sprintf("circuit breaker open for task type %s: %d consecutive failures, retry after %v",
				b.taskType, b.failures, b.config.RecoveryTimeout-elapsed))

	case BreakerHalfOpen:
		if b.probeCount < b.config.HalfOpenMaxProbes {
			b.probeCount++
			return true, nil
		}
		return false, types.NewError(types.ErrCircuitOpen,
			fmt.Sprintf("circuit breaker half-open for task type %s: max probes (%d) reached",
				b.taskType, b.config.HalfOpenMaxProbes))

	default:
		return false, fmt.Errorf("unknown circuit breaker state: %d", b.state)
	}
}

// RecordSuccess 记录成功
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThresholdInHalfOpen {
			b.transitionTo(BreakerClosed, fmt.Sprintf("%d consecutive successes in half-open", b.successes))
			b.failures = 0
			b.successes = 0
			b.probeCount = 0
		}
	}
}

// RecordFailure 记录失败
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = b.now()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(BreakerOpen, fmt.Sprintf("%d consecutive failures", b.failures))
		}
	case BreakerHalfOpen:
		// 半开状态下任何失败都重新熔断
		b.successes = 0
		b.transitionTo(BreakerOpen, "failure in half-open state")
	}
}

// ReleaseProbe 归还一次未计入成败的半开探测名额
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen && b.probeCount > 0 {
		b.probeCount--
	}
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Failures 当前连续失败次数
func (b *Breaker) Failures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures
}

// Reset 手动恢复
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.state
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
	b.probeCount = 0
	if old != BreakerClosed {
		b.emit(old, BreakerClosed, "manual reset")
	}
}

// transitionTo 必须在锁内调用
func (b *Breaker) transitionTo(next BreakerState, reason string) {
	old := b.state
	b.state = next

	b.logger.Info("circuit breaker state change",
		zap.String("old_state", old.String()),
		zap.String("new_state", next.String()),
		zap.String("reason", reason),
		zap.Int("failures", b.failures))

	b.emit(old, next, reason)
}

// emit 必须在锁内调用，回调异步执行
func (b *Breaker) emit(old, next BreakerState, reason string) {
	if b.handler == nil {
		return
	}
	event := BreakerEvent{
		TaskType:  b.taskType,
		OldState:  old,
		NewState:  next,
		Timestamp: b.now(),
		Reason:    reason,
		Failures:  b.failures,
	}
	go b.handler.OnStateChange(event)
}

// =============================================================================
// 📚 熔断器注册表
// =============================================================================

// Breakers 按任务类型管理熔断器
type Breakers struct {
	breakers map[string]*Breaker
	config   BreakerConfig
	handler  BreakerEventHandler
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewBreakers 创建注册表
func NewBreakers(config BreakerConfig, handler BreakerEventHandler, logger *zap.Logger) *Breakers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breakers{
		breakers: make(map[string]*Breaker),
		config:   config,
		handler:  handler,
		logger:   logger,
	}
}

// GetOrCreate 获取或创建某任务类型的熔断器
func (r *Breakers) GetOrCreate(taskType string) *Breaker {
	r.mu.RLock()
	if b, ok := r.breakers[taskType]; ok {
		r.mu.RUnlock()
		return b
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// 双重检查
	if b, ok := r.breakers[taskType]; ok {
		return b
	}
	b := NewBreaker(taskType, r.config, r.handler, r.logger)
	r.breakers[taskType] = b
	return b
}

// States 全部熔断器状态
func (r *Breakers) States() map[string]BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]BreakerState, len(r.breakers))
	for t, b := range r.breakers {
		states[t] = b.State()
	}
	return states
}

// ResetAll 重置全部熔断器
func (r *Breakers) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
