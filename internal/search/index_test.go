package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/task"
)

func TestTaskIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx, err := NewTaskIndex(zap.NewNop())
	require.NoError(t, err)
	defer idx.Close()

	logs := task.New("Parse nginx logs", "extract error rates from access logs", "analysis", task.PriorityHigh,
		[]task.Requirement{{Name: "analysis", MinimumProficiency: 0.5}})
	report := task.New("Weekly report", "summarize the parsed metrics", "writing", task.PriorityLow, nil)
	deploy := task.New("Deploy service", "roll out new build", "ops", task.PriorityCritical, nil)
	for _, tk := range []*task.Task{logs, report, deploy} {
		require.NoError(t, idx.Index(tk))
	}
	assert.Equal(t, uint64(3), idx.Count())

	hits, err := idx.Search(ctx, "logs", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, logs.ID, hits[0].TaskID)

	hits, err = idx.Search(ctx, "type:writing", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, report.ID, hits[0].TaskID)

	hits, err = idx.Search(ctx, "priority:critical", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, deploy.ID, hits[0].TaskID)

	hits, err = idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Delete(logs.ID))
	hits, err = idx.Search(ctx, "nginx", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
