package registry

import (
	"sync"
	"time"
)

// DailyCounters 今日创建/移除计数。
// 重置策略：UTC 零点翻日，在翻日后的第一次读写时惰性清零。
type DailyCounters struct {
	mu      sync.Mutex
	now     func() time.Time
	day     string
	created int64
	removed int64
}

// DailySnapshot 计数快照
type DailySnapshot struct {
	Day     string `json:"day"`
	Created int64  `json:"created_today"`
	Removed int64  `json:"removed_today"`
}

// NewDailyCounters 创建计数器，now 为 nil 时使用 time.Now
func NewDailyCounters(now func() time.Time) *DailyCounters {
	if now == nil {
		now = time.Now
	}
	c := &DailyCounters{now: now}
	c.day = c.today()
	return c
}

// IncCreated 创建数加一
func (c *DailyCounters) IncCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	c.created++
}

// IncRemoved 移除数加一
func (c *DailyCounters) IncRemoved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	c.removed++
}

// Snapshot 返回当前计数
func (c *DailyCounters) Snapshot() DailySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return DailySnapshot{Day: c.day, Created: c.created, Removed: c.removed}
}

func (c *DailyCounters) today() string {
	return c.now().UTC().Format("2006-01-02")
}

// rollover 必须在锁内调用
func (c *DailyCounters) rollover() {
	if d := c.today(); d != c.day {
		c.day = d
		c.created = 0
		c.removed = 0
	}
}
