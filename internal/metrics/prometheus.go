package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	header := func(name, help, kind string) {
		sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, kind))
	}
	labelled := func(name, label string, m map[string]int64, skipZero bool) {
		for _, k := range sortedKeys(m) {
			if skipZero && m[k] == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("%s{%s=\"%s\"} %d\n", name, label, escapeLabel(k), m[k]))
		}
		sb.WriteString("\n")
	}

	header("readr_uptime_seconds", "Time since the daemon started", "gauge")
	sb.WriteString(fmt.Sprintf("readr_uptime_seconds %d\n\n", snap.Uptime))

	header("readr_http_requests_total", "Total number of HTTP requests by endpoint", "counter")
	labelled("readr_http_requests_total", "endpoint", snap.TotalRequests, false)

	header("readr_http_request_errors_total", "Total number of HTTP request errors by endpoint", "counter")
	labelled("readr_http_request_errors_total", "endpoint", snap.RequestErrors, false)

	header("readr_http_requests_in_progress", "Current number of HTTP requests being processed", "gauge")
	labelled("readr_http_requests_in_progress", "endpoint", snap.RequestsInProgress, true)

	header("readr_http_request_duration_ms_total", "Total HTTP request duration in milliseconds", "counter")
	labelled("readr_http_request_duration_ms_total", "endpoint", snap.TotalRequestsDur, false)

	header("readr_sessions_started_total", "Streaming sessions started by provider", "counter")
	labelled("readr_sessions_started_total", "provider", snap.SessionsStarted, false)

	header("readr_sessions_active", "Streaming sessions not yet in a terminal state", "gauge")
	labelled("readr_sessions_active", "provider", snap.SessionsActive, true)

	header("readr_sessions_finished_total", "Streaming sessions by provider and terminal state", "counter")
	for _, k := range sortedKeys(snap.SessionOutcomes) {
		provider, outcome, _ := strings.Cut(k, "|")
		sb.WriteString(fmt.Sprintf("readr_sessions_finished_total{provider=\"%s\",outcome=\"%s\"} %d\n",
			escapeLabel(provider), escapeLabel(outcome), snap.SessionOutcomes[k]))
	}
	sb.WriteString("\n")

	header("readr_session_duration_ms_total", "Total session wall time in milliseconds", "counter")
	labelled("readr_session_duration_ms_total", "provider", snap.SessionLatency, false)

	header("readr_fragments_total", "Text fragments delivered to sinks", "counter")
	labelled("readr_fragments_total", "provider", snap.Fragments, false)

	header("readr_output_chars_total", "Characters of generated text delivered", "counter")
	labelled("readr_output_chars_total", "provider", snap.OutputChars, false)

	header("readr_decode_errors_total", "Stream events that failed to decode", "counter")
	labelled("readr_decode_errors_total", "provider", snap.DecodeErrors, false)

	header("readr_start_rejections_total", "Session starts rejected before any network attempt", "counter")
	labelled("readr_start_rejections_total", "provider", snap.StartRejections, false)

	return sb.String()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string { return labelEscaper.Replace(v) }
