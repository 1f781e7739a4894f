package av

import (
	"log/slog"
	"sort"
)

// Options are private codec options by name, for example
// {"preset": "fast", "crf": 29}. Values are string, int, int64, float64 or
// Rational.
type Options map[string]any

// Keys returns the option names in sorted order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply sets every option on ctx. A value of an unsupported type is an
// error; options the engine rejects are logged and skipped.
func (o Options) Apply(ctx CodecContext, log *slog.Logger) error {
	for _, k := range o.Keys() {
		v := o[k]
		switch v.(type) {
		case string, int, int64, float64, Rational:
		default:
			return Errorf("option %q has unsupported type %T", k, v)
		}
		if err := ctx.SetOption(k, v); err != nil {
			log.Warn("codec option rejected", "codec", ctx.Descriptor().Name, "option", k, "value", v, "error", err)
		}
	}
	return nil
}
