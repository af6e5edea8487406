// Package plugin provides lifecycle hooks at the scheduler's batch/step
// boundaries: hooks fire around each scheduled batch and around each
// individual node step, letting hosts observe scheduling without the
// scheduler knowing about metrics, logging, or user plugins.
package plugin

import "context"

// LifecycleHooks are optional synchronous hook points the scheduler calls
// around its own operations. Hooks must be inert: they must not panic
// (HookEngine recovers and logs a panicking plugin, but the scheduler calls
// LifecycleHooks directly and does not recover) and should return quickly,
// since they run inline with scheduling.
type LifecycleHooks interface {
	BeforeBatch(ctx context.Context, batchSize int)
	AfterBatch(ctx context.Context, batchSize int)
	BeforeStep(ctx context.Context, nodeKey string)
	AfterStep(ctx context.Context, nodeKey string, terminal bool)
}

// NopLifecycleHooks implements LifecycleHooks with no-ops, the default
// when a host registers no plugins.
type NopLifecycleHooks struct{}

func (NopLifecycleHooks) BeforeBatch(context.Context, int)        {}
func (NopLifecycleHooks) AfterBatch(context.Context, int)         {}
func (NopLifecycleHooks) BeforeStep(context.Context, string)      {}
func (NopLifecycleHooks) AfterStep(context.Context, string, bool) {}

// Combine fans every call out to each of hooks in declaration order, so a
// host can wire metrics, logging, and user plugins onto the same scheduler
// run without any of them knowing about the others.
func Combine(hooks ...LifecycleHooks) LifecycleHooks {
	return multiHooks(hooks)
}

type multiHooks []LifecycleHooks

func (m multiHooks) BeforeBatch(ctx context.Context, batchSize int) {
	for _, h := range m {
		h.BeforeBatch(ctx, batchSize)
	}
}

func (m multiHooks) AfterBatch(ctx context.Context, batchSize int) {
	for _, h := range m {
		h.AfterBatch(ctx, batchSize)
	}
}

func (m multiHooks) BeforeStep(ctx context.Context, nodeKey string) {
	for _, h := range m {
		h.BeforeStep(ctx, nodeKey)
	}
}

func (m multiHooks) AfterStep(ctx context.Context, nodeKey string, terminal bool) {
	for _, h := range m {
		h.AfterStep(ctx, nodeKey, terminal)
	}
}
