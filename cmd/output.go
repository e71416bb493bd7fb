package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"authz/pkg/oauth"
)

// printf prints progress output unless --quiet is set.
func printf(cmd *cobra.Command, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}

// newTable creates a table writing to the command output.
func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	return t
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen < 4 || len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// stateText colours a session state for display.
func stateText(state oauth.SessionState) string {
	switch state {
	case oauth.StateHasTokens:
		return text.FgGreen.Sprint(string(state))
	case oauth.StateExpired, oauth.StateCodePending:
		return text.FgYellow.Sprint(string(state))
	default:
		return text.FgHiBlack.Sprint(string(state))
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiry formats an expiry relative to now. The zero time never expires.
func formatExpiry(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}

// renderMetrics prints the authz_* metric families gathered from g.
func renderMetrics(out io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"METRIC", "LABELS", "VALUE"})

	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), "authz_") {
			continue
		}
		for _, metric := range family.GetMetric() {
			t.AppendRow(table.Row{family.GetName(), formatLabels(metric.GetLabel()), formatMetricValue(family.GetType(), metric)})
		}
	}
	t.Render()
	return nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	labels := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		labels = append(labels, pair.GetName()+"="+pair.GetValue())
	}
	sort.Strings(labels)
	return dashIfEmpty(strings.Join(labels, ","))
}

func formatMetricValue(metricType dto.MetricType, metric *dto.Metric) string {
	switch metricType {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", metric.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%g", metric.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := metric.GetHistogram()
		return fmt.Sprintf("count=%d sum=%.3fs", h.GetSampleCount(), h.GetSampleSum())
	default:
		return "-"
	}
}
