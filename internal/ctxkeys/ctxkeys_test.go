package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringKeys(t *testing.T) {
	ctx := context.Background()
	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSubject(ctx, "operator")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
	tid, _ := TraceID(ctx)
	assert.Equal(t, "trace-1", tid)
	sub, _ := Subject(ctx)
	assert.Equal(t, "operator", sub)

	_, ok = Subject(WithSubject(context.Background(), ""))
	assert.False(t, ok, "empty value counts as missing")
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Roles(ctx))
	assert.False(t, HasRole(ctx, "admin"))

	ctx = WithRoles(ctx, []string{"viewer", "admin"})
	assert.True(t, HasRole(ctx, "admin"))
	assert.False(t, HasRole(ctx, "root"))
}
