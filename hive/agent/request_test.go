package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agenthive/types"
)

func TestParseCreateRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		wantType  Type
		wantName  string
	}{
		{name: "worker minimal", body: `{"type":"worker"}`, wantType: Worker(), wantName: "worker"},
		{name: "specialist gets general tag", body: `{"type":"specialist","name":"spec"}`, wantType: Specialist("general"), wantName: "spec"},
		{name: "learner with caps", body: `{"type":"learner","capabilities":[{"name":"x","proficiency":0.5,"learning_rate":0.3}]}`, wantType: Learner(), wantName: "learner"},
		{name: "missing type", body: `{"name":"n"}`, wantField: "type"},
		{name: "unknown type", body: `{"type":"wizard"}`, wantField: "type"},
		{name: "proficiency above range", body: `{"type":"worker","capabilities":[{"name":"x","proficiency":1.5}]}`, wantField: "capabilities[0].proficiency"},
		{name: "proficiency missing", body: `{"type":"worker","capabilities":[{"name":"x"}]}`, wantField: "capabilities[0].proficiency"},
		{name: "negative learning rate", body: `{"type":"worker","capabilities":[{"name":"x","proficiency":0.5,"learning_rate":-0.1}]}`, wantField: "capabilities[0].learning_rate"},
		{name: "empty capability name", body: `{"type":"worker","capabilities":[{"name":" ","proficiency":0.5}]}`, wantField: "capabilities[0].name"},
		{name: "duplicate capability", body: `{"type":"worker","capabilities":[{"name":"x","proficiency":0.5},{"name":"x","proficiency":0.6}]}`, wantField: "capabilities[1].name"},
		{name: "not an object", body: `[1,2]`, wantField: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseCreateRequest([]byte(tt.body))
			if tt.wantField != "" {
				require.Error(t, err)
				e, ok := types.AsError(err)
				require.True(t, ok)
				assert.Equal(t, types.ErrValidation, e.Code)
				assert.Equal(t, tt.wantField, e.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, spec.Type)
			assert.Equal(t, tt.wantName, spec.Name)
		})
	}
}

func TestParseType_UnknownReason(t *testing.T) {
	_, err := ParseType("wizard")
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Unknown agent type: wizard", e.Reason)

	_, err = ParseType("")
	e, _ = types.AsError(err)
	assert.Equal(t, "Agent type is required", e.Reason)
}

func TestSpecBuild_DefaultLearningRate(t *testing.T) {
	spec, err := ParseCreateRequest([]byte(`{"type":"worker","capabilities":[{"name":"x","proficiency":0.7}]}`))
	require.NoError(t, err)

	a := spec.Build()
	c, ok := a.Capability("x")
	require.True(t, ok)
	assert.Equal(t, 0.7, c.Proficiency)
	assert.Equal(t, DefaultLearningRate, c.LearningRate)
	assert.Equal(t, StateIdle, a.State)
}
