package logging

import "go.uber.org/zap/zapcore"

// newSampledCore bounds log volume below the error level: warn and under
// go through a zap sampler, error and above always pass untouched.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	always := &enablerCore{Core: core, allow: func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel
	}}
	sampled := zapcore.NewSamplerWithOptions(
		&enablerCore{Core: core, allow: func(l zapcore.Level) bool {
			return l < zapcore.ErrorLevel
		}},
		cfg.Tick.Duration(),
		cfg.Initial,
		cfg.Thereafter,
	)
	return zapcore.NewTee(always, sampled)
}

// enablerCore gates a core on a level predicate.
type enablerCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *enablerCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *enablerCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *enablerCore) With(fields []zapcore.Field) zapcore.Core {
	return &enablerCore{Core: c.Core.With(fields), allow: c.allow}
}
