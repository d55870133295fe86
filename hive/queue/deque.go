package queue

import (
	"github.com/BaSui01/agenthive/hive/task"
)

// deque 按优先级排序的双端队列。
// critical 插在已有 critical 之后，high 插在 critical 段之后、其余任务之前，
// medium/low 追加到队尾。同一优先级内保持 FIFO。
type deque struct {
	items []*task.Task
}

func (d *deque) len() int { return len(d.items) }

// insert 按优先级规则插入
func (d *deque) insert(t *task.Task) {
	switch t.Priority {
	case task.PriorityCritical:
		d.insertAt(d.runEnd(0, task.PriorityCritical), t)
	case task.PriorityHigh:
		i := d.runEnd(0, task.PriorityCritical)
		d.insertAt(d.runEnd(i, task.PriorityHigh), t)
	default:
		d.items = append(d.items, t)
	}
}

// runEnd 从 start 开始跳过优先级为 p 的连续段，返回段尾位置
func (d *deque) runEnd(start int, p task.Priority) int {
	i := start
	for i < len(d.items) && d.items[i].Priority == p {
		i++
	}
	return i
}

func (d *deque) insertAt(i int, t *task.Task) {
	d.items = append(d.items, nil)
	copy(d.items[i+1:], d.items[i:])
	d.items[i] = t
}

func (d *deque) pushBack(t *task.Task) {
	d.items = append(d.items, t)
}

func (d *deque) popFront() *task.Task {
	if len(d.items) == 0 {
		return nil
	}
	t := d.items[0]
	d.items[0] = nil
	d.items = d.items[1:]
	return t
}

func (d *deque) popBack() *task.Task {
	n := len(d.items)
	if n == 0 {
		return nil
	}
	t := d.items[n-1]
	d.items[n-1] = nil
	d.items = d.items[:n-1]
	return t
}

// removeFirst 移除并返回第一个满足 pred 的任务
func (d *deque) removeFirst(pred func(*task.Task) bool) *task.Task {
	for i, t := range d.items {
		if pred(t) {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return t
		}
	}
	return nil
}

// removeLast 从尾部向前查找并移除第一个满足 pred 的任务
func (d *deque) removeLast(pred func(*task.Task) bool) *task.Task {
	for i := len(d.items) - 1; i >= 0; i-- {
		if t := d.items[i]; pred(t) {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return t
		}
	}
	return nil
}

// removeAll 移除全部满足 pred 的任务，保持剩余顺序
func (d *deque) removeAll(pred func(*task.Task) bool) []*task.Task {
	var removed []*task.Task
	kept := d.items[:0]
	for _, t := range d.items {
		if pred(t) {
			removed = append(removed, t)
		} else {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(d.items); i++ {
		d.items[i] = nil
	}
	d.items = kept
	return removed
}

func (d *deque) drain() []*task.Task {
	out := d.items
	d.items = nil
	return out
}

func (d *deque) snapshot() []*task.Task {
	out := make([]*task.Task, len(d.items))
	copy(out, d.items)
	return out
}
