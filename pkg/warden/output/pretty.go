package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/warden/pkg/warden/policy"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatConfig(r))
	return nil
}

// formatHeader builds the box describing the detected resources.
func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	memLabel := LabelStyle.Render("Memory:")
	memValue := ValueStyle.Render(fmt.Sprintf("%s available of %s",
		humanize.IBytes(uint64(r.Snapshot.AvailableMemory)),
		humanize.IBytes(uint64(r.Snapshot.TotalMemory))))
	lines = append(lines, fmt.Sprintf("%s %s", memLabel, memValue))

	coresLabel := LabelStyle.Render("Cores:")
	coresValue := ValueStyle.Render(fmt.Sprintf("%d", r.Snapshot.CPUCores))
	tierLabel := LabelStyle.Render("Tier:")
	tierValue := f.tierStyle(r.Config).Render(r.Config.Tier.String())
	lines = append(lines, fmt.Sprintf("%s %s  %s %s", coresLabel, coresValue, tierLabel, tierValue))

	if r.Snapshot.Degraded {
		lines = append(lines, WarningStyle.Bold(true).Render("Detection failed; using fallback values"))
	}
	if !r.Config.Viable {
		lines = append(lines, ErrorStyle.Bold(true).Render("Below minimum memory; single worker forced"))
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// tierStyle colors the tier name by how comfortable the environment is.
func (f *PrettyFormatter) tierStyle(cfg policy.Config) lipgloss.Style {
	switch {
	case !cfg.Viable:
		return ErrorStyle
	case cfg.Tier <= policy.TierMinimal:
		return WarningStyle
	default:
		return SuccessStyle
	}
}

// formatConfig lists the computed settings, aligned label/value pairs.
func (f *PrettyFormatter) formatConfig(r *Report) string {
	rows := []struct {
		label string
		value string
	}{
		{"Workers", fmt.Sprintf("%d", r.Config.Workers)},
		{"Request timeout", fmt.Sprintf("%ds", r.Config.RequestTimeout)},
		{"Pool size", fmt.Sprintf("%d", r.Config.PoolSize)},
		{"Recycle after", f.recycleValue(r.Config.RecycleAfter)},
	}

	var sb strings.Builder
	for _, row := range rows {
		label := LabelStyle.Render(padRight(row.label+":", 17))
		sb.WriteString(fmt.Sprintf("  %s %s\n", label, ValueStyle.Render(row.value)))
	}
	return sb.String()
}

func (f *PrettyFormatter) recycleValue(n int) string {
	if n == 0 {
		return "disabled"
	}
	return fmt.Sprintf("%d requests", n)
}

// padRight pads a string with spaces on the right to the desired width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
