package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerTransitions(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	require.True(t, l.ResetOnSceneChange("scene_1206"))
	const key = "scene_1206-view_3005"

	assert.Equal(t, Unattempted, l.State(key))
	require.True(t, l.ShouldActivate(key))

	gen := l.Begin(key)
	assert.Equal(t, Loading, l.State(key))
	assert.False(t, l.ShouldActivate(key), "one load in flight per key")

	require.True(t, l.MarkActivated(key, gen, false))
	assert.Equal(t, Failed, l.State(key))
	assert.True(t, l.ShouldActivate(key), "failed keys are retried")

	gen = l.Begin(key)
	require.True(t, l.MarkActivated(key, gen, true))
	assert.Equal(t, Activated, l.State(key))
	assert.False(t, l.ShouldActivate(key))
	assert.False(t, l.MarkActivated(key, gen, false), "activated is terminal")
}

func TestLedgerSceneChange(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.ResetOnSceneChange("scene_1")
	gen := l.Begin("scene_1-view_1")

	assert.False(t, l.ResetOnSceneChange("scene_1"), "same scene keeps the ledger")
	assert.Equal(t, Loading, l.State("scene_1-view_1"))

	require.True(t, l.ResetOnSceneChange("scene_2"))
	assert.Equal(t, "scene_2", l.Scene())
	assert.Empty(t, l.Snapshot())
	assert.False(t, l.MarkActivated("scene_1-view_1", gen, true), "stale generation")
	assert.Equal(t, Unattempted, l.State("scene_1-view_1"))
}

func TestLedgerForget(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	gen := l.Begin("scene_1")
	require.True(t, l.Forget("scene_1", gen))
	assert.Equal(t, Unattempted, l.State("scene_1"))
	assert.False(t, l.Forget("scene_1", gen))
}

func TestActivationStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unattempted", Unattempted.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "activated", Activated.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", ActivationState(42).String())
}
