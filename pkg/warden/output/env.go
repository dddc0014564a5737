package output

import (
	"bytes"
	"fmt"
)

// EnvFormatter emits the configuration as shell-style assignments, one per
// line, suitable for sourcing into a supervisor's environment.
type EnvFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *EnvFormatter) Format(w *bytes.Buffer, r *Report) error {
	fmt.Fprintf(w, "WORKER_COUNT=%d\n", r.Config.Workers)
	fmt.Fprintf(w, "WORKER_TIMEOUT=%d\n", r.Config.RequestTimeout)
	fmt.Fprintf(w, "POOL_SIZE=%d\n", r.Config.PoolSize)
	fmt.Fprintf(w, "RECYCLE_AFTER=%d\n", r.Config.RecycleAfter)
	fmt.Fprintf(w, "CONFIG_TIER=%s\n", r.Config.Tier)
	fmt.Fprintf(w, "CONFIG_VIABLE=%t\n", r.Config.Viable)
	return nil
}

func init() {
	Register("env", func() Formatter {
		return &EnvFormatter{}
	})
}

// Ensure EnvFormatter implements Formatter.
var _ Formatter = (*EnvFormatter)(nil)
