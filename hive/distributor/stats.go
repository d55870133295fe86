package distributor

import (
	"time"

	"github.com/BaSui01/agenthive/hive/task"
)

// Stats 分发统计
type Stats struct {
	Tracked              int                     `json:"tracked_tasks"`
	Pending              int                     `json:"pending_tasks"`
	Overdue              int                     `json:"overdue_tasks"`
	Enqueued             int64                   `json:"enqueued"`
	Rejected             int64                   `json:"rejected"`
	Launched             int64                   `json:"launched"`
	Completed            int64                   `json:"completed"`
	Failed               int64                   `json:"failed"`
	Retried              int64                   `json:"retried"`
	VerificationRequeues int64                   `json:"verification_requeues"`
	BreakerDeferrals     int64                   `json:"breaker_deferrals"`
	ByStatus             map[task.Status]int     `json:"by_status"`
	Breakers             map[string]BreakerState `json:"circuit_breakers"`
}

// Stats 返回统计快照
func (d *Distributor) Stats() Stats {
	d.mu.RLock()
	st := Stats{
		Tracked:              len(d.entries),
		Enqueued:             d.stats.enqueued,
		Rejected:             d.stats.rejected,
		Launched:             d.stats.launched,
		Completed:            d.stats.completed,
		Failed:               d.stats.failed,
		Retried:              d.stats.retried,
		VerificationRequeues: d.stats.verificationRequeues,
		BreakerDeferrals:     d.stats.breakerDeferrals,
		ByStatus:             make(map[task.Status]int),
	}
	now := time.Now()
	for _, e := range d.entries {
		st.ByStatus[e.task.Status]++
		if e.task.Overdue(now) {
			st.Overdue++
		}
	}
	d.mu.RUnlock()

	st.Pending = d.queue.Len()
	st.Breakers = d.breakers.States()
	return st
}
