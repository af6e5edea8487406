package plugin

import (
	"context"
	"log/slog"
)

// LoggingPlugin is a built-in RuntimePlugin that logs scheduler batch and
// step boundaries through slog. It is the concrete plugin a host enables to
// get verbose scheduling traces, and it exercises HookEngine end to end
// instead of leaving it as unreferenced infrastructure.
type LoggingPlugin struct {
	log *slog.Logger
}

// NewLoggingPlugin returns a LoggingPlugin that logs through log.
func NewLoggingPlugin(log *slog.Logger) *LoggingPlugin {
	if log == nil {
		log = slog.Default()
	}
	return &LoggingPlugin{log: log}
}

// Manifest declares every hook LoggingPlugin implements.
func (p *LoggingPlugin) Manifest() Manifest {
	return Manifest{PluginID: "logging", Hooks: []string{"BeforeBatch", "AfterBatch", "BeforeStep", "AfterStep"}}
}

func (p *LoggingPlugin) BeforeBatch(_ context.Context, batchSize int) error {
	p.log.Debug("batch starting", "batch_size", batchSize)
	return nil
}

func (p *LoggingPlugin) AfterBatch(_ context.Context, batchSize int) error {
	p.log.Debug("batch finished", "batch_size", batchSize)
	return nil
}

func (p *LoggingPlugin) BeforeStep(_ context.Context, nodeKey string) error {
	p.log.Debug("step starting", "node", nodeKey)
	return nil
}

func (p *LoggingPlugin) AfterStep(_ context.Context, nodeKey string, terminal bool) error {
	p.log.Debug("step finished", "node", nodeKey, "terminal", terminal)
	return nil
}

var (
	_ beforeBatchPlugin = (*LoggingPlugin)(nil)
	_ afterBatchPlugin  = (*LoggingPlugin)(nil)
	_ beforeStepPlugin  = (*LoggingPlugin)(nil)
	_ afterStepPlugin   = (*LoggingPlugin)(nil)
)
