package output

import (
	"bytes"
	"encoding/json"
)

// jsonReport is the full JSON output structure.
type jsonReport struct {
	Snapshot jsonSnapshot `json:"snapshot"`
	Config   jsonConfig   `json:"config"`
}

// jsonSnapshot is the resource snapshot in JSON output.
type jsonSnapshot struct {
	TotalMB     int64 `json:"total_mb"`
	AvailableMB int64 `json:"available_mb"`
	CPUCores    int   `json:"cpu_cores"`
	Degraded    bool  `json:"degraded"`
}

// jsonConfig is the worker configuration in JSON output.
type jsonConfig struct {
	Workers        int    `json:"workers"`
	RequestTimeout int    `json:"request_timeout_s"`
	PoolSize       int    `json:"pool_size"`
	RecycleAfter   int    `json:"recycle_after"`
	Tier           string `json:"tier"`
	Viable         bool   `json:"viable"`
}

// JSONFormatter formats output as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildReport(r))
}

// buildReport converts a Report to the JSON output structure.
func buildReport(r *Report) jsonReport {
	return jsonReport{
		Snapshot: jsonSnapshot{
			TotalMB:     r.Snapshot.TotalMB(),
			AvailableMB: r.Snapshot.AvailableMB(),
			CPUCores:    r.Snapshot.CPUCores,
			Degraded:    r.Snapshot.Degraded,
		},
		Config: jsonConfig{
			Workers:        r.Config.Workers,
			RequestTimeout: r.Config.RequestTimeout,
			PoolSize:       r.Config.PoolSize,
			RecycleAfter:   r.Config.RecycleAfter,
			Tier:           r.Config.Tier.String(),
			Viable:         r.Config.Viable,
		},
	}
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
