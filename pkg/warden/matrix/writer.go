package matrix

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// csvHeader is the stable column order of a results file.
var csvHeader = []string{
	"ram_tier_mb",
	"scenario",
	"config_mode",
	"timeout_count",
	"startup_time_s",
	"response_time_s",
	"result",
}

// WriteCSV writes results in matrix order to w.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range results {
		row := []string{
			strconv.Itoa(r.TierMB),
			string(r.Scenario),
			string(r.Mode),
			strconv.Itoa(r.TimeoutCount),
			strconv.FormatFloat(r.StartupTime.Seconds(), 'f', 3, 64),
			strconv.FormatFloat(r.ResponseTime.Seconds(), 'f', 3, 64),
			string(r.Outcome),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.Key(), err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes results to path, creating parent directories.
func WriteCSVFile(path string, results []Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}

	if err := WriteCSV(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
