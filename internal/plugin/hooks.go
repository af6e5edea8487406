package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manifest names a plugin and which lifecycle hooks it declares.
type Manifest struct {
	PluginID string
	Hooks    []string
}

// RuntimePlugin is a plugin implementation; it implements only the hook
// methods it declares in its Manifest, discovered via optional interface
// assertions.
type RuntimePlugin interface {
	Manifest() Manifest
}

type beforeBatchPlugin interface {
	BeforeBatch(ctx context.Context, batchSize int) error
}
type afterBatchPlugin interface {
	AfterBatch(ctx context.Context, batchSize int) error
}
type beforeStepPlugin interface {
	BeforeStep(ctx context.Context, nodeKey string) error
}
type afterStepPlugin interface {
	AfterStep(ctx context.Context, nodeKey string, terminal bool) error
}

type pluginEntry struct {
	plugin RuntimePlugin
	id     string
	hooks  map[string]struct{}
}

// HookEngine runs every registered plugin's applicable hooks, in stable
// order by plugin id, recovering panics and recording errors without ever
// surfacing them to the scheduler: a misbehaving plugin stalls nothing.
type HookEngine struct {
	log *slog.Logger

	mu   sync.Mutex
	errs []error
	plug []pluginEntry
}

var _ LifecycleHooks = (*HookEngine)(nil)

// NewHookEngine builds a HookEngine from plugin implementations, sorted
// and deduplicated by plugin id; a duplicate id is rejected.
func NewHookEngine(plugins []RuntimePlugin, log *slog.Logger) (*HookEngine, error) {
	if log == nil {
		log = slog.Default()
	}
	entries := make([]pluginEntry, 0, len(plugins))
	for _, p := range plugins {
		if p == nil {
			continue
		}
		m := p.Manifest()
		if m.PluginID == "" {
			return nil, fmt.Errorf("plugin manifest missing plugin id")
		}
		hset := make(map[string]struct{}, len(m.Hooks))
		for _, h := range m.Hooks {
			hset[h] = struct{}{}
		}
		entries = append(entries, pluginEntry{plugin: p, id: m.PluginID, hooks: hset})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for i := 1; i < len(entries); i++ {
		if entries[i].id == entries[i-1].id {
			return nil, fmt.Errorf("duplicate plugin id: %s", entries[i].id)
		}
	}
	return &HookEngine{log: log, plug: entries}, nil
}

// Errors returns a snapshot of every hook error observed so far.
func (e *HookEngine) Errors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

func (e *HookEngine) recordError(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func (e *HookEngine) guard(pluginID, hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("plugin %s hook %s panic: %v", pluginID, hook, r)
			e.log.Error("plugin hook panicked", "plugin", pluginID, "hook", hook, "panic", r)
			e.recordError(err)
		}
	}()
	if err := fn(); err != nil {
		err2 := fmt.Errorf("plugin %s hook %s error: %w", pluginID, hook, err)
		e.log.Error("plugin hook failed", "plugin", pluginID, "hook", hook, "err", err)
		e.recordError(err2)
	}
}

func (e *HookEngine) BeforeBatch(ctx context.Context, batchSize int) {
	for _, ent := range e.plug {
		if _, ok := ent.hooks["BeforeBatch"]; !ok {
			continue
		}
		h, ok := ent.plugin.(beforeBatchPlugin)
		if !ok {
			e.recordError(fmt.Errorf("plugin %s declares BeforeBatch but does not implement it", ent.id))
			continue
		}
		e.guard(ent.id, "BeforeBatch", func() error { return h.BeforeBatch(ctx, batchSize) })
	}
}

func (e *HookEngine) AfterBatch(ctx context.Context, batchSize int) {
	for _, ent := range e.plug {
		if _, ok := ent.hooks["AfterBatch"]; !ok {
			continue
		}
		h, ok := ent.plugin.(afterBatchPlugin)
		if !ok {
			e.recordError(fmt.Errorf("plugin %s declares AfterBatch but does not implement it", ent.id))
			continue
		}
		e.guard(ent.id, "AfterBatch", func() error { return h.AfterBatch(ctx, batchSize) })
	}
}

func (e *HookEngine) BeforeStep(ctx context.Context, nodeKey string) {
	for _, ent := range e.plug {
		if _, ok := ent.hooks["BeforeStep"]; !ok {
			continue
		}
		h, ok := ent.plugin.(beforeStepPlugin)
		if !ok {
			e.recordError(fmt.Errorf("plugin %s declares BeforeStep but does not implement it", ent.id))
			continue
		}
		e.guard(ent.id, "BeforeStep", func() error { return h.BeforeStep(ctx, nodeKey) })
	}
}

func (e *HookEngine) AfterStep(ctx context.Context, nodeKey string, terminal bool) {
	for _, ent := range e.plug {
		if _, ok := ent.hooks["AfterStep"]; !ok {
			continue
		}
		h, ok := ent.plugin.(afterStepPlugin)
		if !ok {
			e.recordError(fmt.Errorf("plugin %s declares AfterStep but does not implement it", ent.id))
			continue
		}
		e.guard(ent.id, "AfterStep", func() error { return h.AfterStep(ctx, nodeKey, terminal) })
	}
}
