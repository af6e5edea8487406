package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlugin struct {
	manifest Manifest
	calls    *[]string

	panicBeforeBatch bool
	panicBeforeStep  bool

	errBeforeBatch error
	errAfterBatch  error
	errBeforeStep  error
	errAfterStep   error
}

func (p *recordingPlugin) Manifest() Manifest { return p.manifest }

func (p *recordingPlugin) BeforeBatch(_ context.Context, batchSize int) error {
	*p.calls = append(*p.calls, p.manifest.PluginID+":BeforeBatch")
	if p.panicBeforeBatch {
		panic("boom")
	}
	return p.errBeforeBatch
}

func (p *recordingPlugin) AfterBatch(_ context.Context, batchSize int) error {
	*p.calls = append(*p.calls, p.manifest.PluginID+":AfterBatch")
	return p.errAfterBatch
}

func (p *recordingPlugin) BeforeStep(_ context.Context, nodeKey string) error {
	*p.calls = append(*p.calls, p.manifest.PluginID+":BeforeStep:"+nodeKey)
	if p.panicBeforeStep {
		panic("boom")
	}
	return p.errBeforeStep
}

func (p *recordingPlugin) AfterStep(_ context.Context, nodeKey string, terminal bool) error {
	*p.calls = append(*p.calls, p.manifest.PluginID+":AfterStep:"+nodeKey)
	return p.errAfterStep
}

func TestHookEngineDeterministicOrderByPluginID(t *testing.T) {
	var calls []string
	pB := &recordingPlugin{manifest: Manifest{PluginID: "b", Hooks: []string{"BeforeBatch"}}, calls: &calls}
	pA := &recordingPlugin{manifest: Manifest{PluginID: "a", Hooks: []string{"BeforeBatch"}}, calls: &calls}

	eng, err := NewHookEngine([]RuntimePlugin{pB, pA}, nil)
	require.NoError(t, err)

	eng.BeforeBatch(context.Background(), 2)
	assert.Equal(t, []string{"a:BeforeBatch", "b:BeforeBatch"}, calls)
}

func TestHookEngineInvokesBatchAndStepBoundaries(t *testing.T) {
	var calls []string
	p := &recordingPlugin{
		manifest: Manifest{PluginID: "p", Hooks: []string{"BeforeBatch", "AfterBatch", "BeforeStep", "AfterStep"}},
		calls:    &calls,
	}
	eng, err := NewHookEngine([]RuntimePlugin{p}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	eng.BeforeBatch(ctx, 1)
	eng.BeforeStep(ctx, "select|a|X|")
	eng.AfterStep(ctx, "select|a|X|", true)
	eng.AfterBatch(ctx, 1)

	want := []string{
		"p:BeforeBatch",
		"p:BeforeStep:select|a|X|",
		"p:AfterStep:select|a|X|",
		"p:AfterBatch",
	}
	assert.Equal(t, want, calls)
}

func TestHookEngineMultiplePluginsSameHookDeterministic(t *testing.T) {
	var calls []string
	pB := &recordingPlugin{manifest: Manifest{PluginID: "b", Hooks: []string{"BeforeStep"}}, calls: &calls}
	pA := &recordingPlugin{manifest: Manifest{PluginID: "a", Hooks: []string{"BeforeStep"}}, calls: &calls}

	eng, err := NewHookEngine([]RuntimePlugin{pB, pA}, nil)
	require.NoError(t, err)

	eng.BeforeStep(context.Background(), "n")
	assert.Equal(t, []string{"a:BeforeStep:n", "b:BeforeStep:n"}, calls)
}

func TestHookEnginePluginPanicRecovered(t *testing.T) {
	var calls []string
	p := &recordingPlugin{
		manifest:        Manifest{PluginID: "p", Hooks: []string{"BeforeStep"}},
		calls:           &calls,
		panicBeforeStep: true,
	}
	eng, err := NewHookEngine([]RuntimePlugin{p}, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { eng.BeforeStep(context.Background(), "n") })
	assert.NotEmpty(t, eng.Errors())
}

func TestHookEnginePluginErrorDoesNotCrashEngine(t *testing.T) {
	var calls []string
	p := &recordingPlugin{
		manifest:      Manifest{PluginID: "p", Hooks: []string{"AfterBatch"}},
		calls:         &calls,
		errAfterBatch: errors.New("hook failed"),
	}
	eng, err := NewHookEngine([]RuntimePlugin{p}, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { eng.AfterBatch(context.Background(), 1) })
	require.Len(t, eng.Errors(), 1)
}

func TestNewHookEngineRejectsDuplicatePluginID(t *testing.T) {
	a := &recordingPlugin{manifest: Manifest{PluginID: "dup", Hooks: []string{"BeforeBatch"}}, calls: &[]string{}}
	b := &recordingPlugin{manifest: Manifest{PluginID: "dup", Hooks: []string{"AfterBatch"}}, calls: &[]string{}}

	_, err := NewHookEngine([]RuntimePlugin{a, b}, nil)
	require.Error(t, err)
}

func TestCombineFansOutToEachHookSet(t *testing.T) {
	var calls []string
	p := &recordingPlugin{
		manifest: Manifest{PluginID: "p", Hooks: []string{"BeforeBatch", "AfterBatch"}},
		calls:    &calls,
	}
	eng, err := NewHookEngine([]RuntimePlugin{p}, nil)
	require.NoError(t, err)

	var metricsBatches int
	metrics := recordingHooks{afterBatch: func(int) { metricsBatches++ }}

	combined := Combine(eng, metrics)
	combined.BeforeBatch(context.Background(), 3)
	combined.AfterBatch(context.Background(), 3)

	assert.Equal(t, []string{"p:BeforeBatch", "p:AfterBatch"}, calls)
	assert.Equal(t, 1, metricsBatches)
}

type recordingHooks struct {
	afterBatch func(int)
}

func (recordingHooks) BeforeBatch(context.Context, int)    {}
func (h recordingHooks) AfterBatch(_ context.Context, n int) {
	if h.afterBatch != nil {
		h.afterBatch(n)
	}
}
func (recordingHooks) BeforeStep(context.Context, string)      {}
func (recordingHooks) AfterStep(context.Context, string, bool) {}

var _ LifecycleHooks = recordingHooks{}
