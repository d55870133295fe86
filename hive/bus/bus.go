package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrClosed 总线已关闭
var ErrClosed = errors.New("bus: closed")

// DefaultBufferSize 每个订阅者的缓冲区大小
const DefaultBufferSize = 1024

// Sender 发送句柄。子系统只持有 Sender，不持有彼此的引用。
type Sender interface {
	Send(msg Message)
}

// SenderFunc 函数适配器
type SenderFunc func(msg Message)

// Send 实现 Sender
func (f SenderFunc) Send(msg Message) { f(msg) }

// Nop 丢弃所有消息的 Sender
var Nop Sender = SenderFunc(func(Message) {})

// =============================================================================
// 📡 协调总线
// =============================================================================

// Bus 扇出式协调总线。Send 非阻塞，至多一次投递；
// 每个订阅者是一个 FIFO 缓冲通道，同一发送方的消息顺序保持不变。
type Bus struct {
	bufferSize int
	logger     *zap.Logger

	mu   sync.RWMutex
	subs map[string]*Subscription

	seq     atomic.Uint64
	sent    atomic.Int64
	dropped atomic.Int64
	closed  atomic.Bool
}

// Subscription 某个子系统的逻辑接收端
type Subscription struct {
	name    string
	ch      chan Delivery
	bus     *Bus
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// Stats 总线统计
type Stats struct {
	Subscribers int   `json:"subscribers"`
	Sent        int64 `json:"sent"`
	Dropped     int64 `json:"dropped"`
}

// New 创建总线
func New(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		bufferSize: bufferSize,
		logger:     logger.With(zap.String("component", "coordination_bus")),
		subs:       make(map[string]*Subscription),
	}
}

// Send 非阻塞发送。缓冲区满或订阅者已关闭时丢弃并记录日志，从不返回错误。
func (b *Bus) Send(msg Message) {
	if msg == nil {
		return
	}
	if b.closed.Load() {
		b.dropped.Add(1)
		b.logger.Debug("message dropped, bus closed", zap.String("kind", string(msg.Kind())))
		return
	}

	d := Delivery{Seq: b.seq.Add(1), Timestamp: time.Now().UTC(), Message: msg}
	b.sent.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.subs) == 0 {
		b.logger.Debug("message has no receivers", zap.String("kind", string(msg.Kind())))
		return
	}
	for _, sub := range b.subs {
		if !sub.offer(d) {
			b.dropped.Add(1)
			b.logger.Warn("message dropped",
				zap.String("subscriber", sub.name),
				zap.String("kind", string(msg.Kind())),
				zap.Uint64("seq", d.Seq))
		}
	}
}

// Subscribe 为子系统创建接收端。同名订阅替换旧订阅。
func (b *Bus) Subscribe(name string) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	sub := &Subscription{
		name: name,
		ch:   make(chan Delivery, b.bufferSize),
		bus:  b,
	}

	b.mu.Lock()
	old := b.subs[name]
	b.subs[name] = sub
	b.mu.Unlock()

	if old != nil {
		old.close()
	}
	b.logger.Debug("subscriber added", zap.String("subscriber", name))
	return sub, nil
}

// Stats 返回统计信息
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{Subscribers: n, Sent: b.sent.Load(), Dropped: b.dropped.Load()}
}

// Close 关闭总线及所有订阅
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Name 订阅名
func (s *Subscription) Name() string { return s.name }

// C 接收通道，订阅关闭后通道关闭
func (s *Subscription) C() <-chan Delivery { return s.ch }

// Dropped 因缓冲区满被丢弃的消息数
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Unsubscribe 取消订阅
func (s *Subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	if b.subs[s.name] == s {
		delete(b.subs, s.name)
	}
	b.mu.Unlock()
	s.close()
}

func (s *Subscription) offer(d Delivery) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- d:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
