package output

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as a YAML document with the same structure
// as the JSON formatter.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *Report) error {
	report := buildReport(r)

	doc := map[string]any{
		"snapshot": map[string]any{
			"total_mb":     report.Snapshot.TotalMB,
			"available_mb": report.Snapshot.AvailableMB,
			"cpu_cores":    report.Snapshot.CPUCores,
			"degraded":     report.Snapshot.Degraded,
		},
		"config": map[string]any{
			"workers":           report.Config.Workers,
			"request_timeout_s": report.Config.RequestTimeout,
			"pool_size":         report.Config.PoolSize,
			"recycle_after":     report.Config.RecycleAfter,
			"tier":              report.Config.Tier,
			"viable":            report.Config.Viable,
		},
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

// Ensure YAMLFormatter implements Formatter.
var _ Formatter = (*YAMLFormatter)(nil)
