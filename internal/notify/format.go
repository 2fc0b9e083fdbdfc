package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/logops/internal/model"
)

var kindEmoji = map[string]string{
	KindErrorSpike:                            "🚨",
	KindCriticalSpike:                         "🔴",
	string(model.AnomalyVolumeSpike):          "📈",
	string(model.AnomalyHighErrorRate):        "❌",
	string(model.AnomalyHighCriticalRate):     "💥",
	string(model.AnomalyServiceErrorSpike):    "🚨",
	string(model.AnomalyServiceCriticalSpike): "🔴",
	string(model.AnomalyPattern):              "🔍",
}

// Format renders a as a Telegram Markdown message.
func Format(a Alert, now time.Time) string {
	emoji, ok := kindEmoji[a.Kind]
	if !ok {
		emoji = "⚠️"
	}
	at := a.Time
	if at.IsZero() {
		at = now
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *LogOps Alert*\n", emoji)
	fmt.Fprintf(&b, "🕐 Time: `%s`\n", at.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "📊 Type: `%s`\n", title(a.Kind))
	if a.Service != "" {
		fmt.Fprintf(&b, "🔧 Service: `%s`\n", codeSpan(a.Service))
	}
	for _, d := range a.Details {
		fmt.Fprintf(&b, "• %s: `%s`\n", d.Label, codeSpan(d.Value))
	}
	b.WriteString("\n🔗 *LogOps Analyzer* - Real-time monitoring")
	return b.String()
}

// codeSpan makes s safe inside a legacy Markdown code span, which has no
// escape for the backtick.
func codeSpan(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

func title(kind string) string {
	words := strings.Split(kind, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// AnomalyAlert builds the alert for a detected anomaly.
func AnomalyAlert(a model.AnomalyRecord) Alert {
	return Alert{
		Kind:    string(a.Type),
		Service: a.AffectedService,
		Time:    a.Timestamp,
		Details: []Detail{
			{Label: "Confidence", Value: fmt.Sprintf("%.2f", a.ConfidenceScore)},
			{Label: "Severity", Value: a.Severity},
			{Label: "Description", Value: a.Description},
		},
	}
}

// ThresholdAlert builds the alert for a batch whose count of one severity
// reached its threshold.
func ThresholdAlert(kind string, count, threshold int, services []string) Alert {
	label := "Error Count"
	if kind == KindCriticalSpike {
		label = "Critical Count"
	}
	details := []Detail{
		{Label: label, Value: fmt.Sprint(count)},
		{Label: "Threshold", Value: fmt.Sprint(threshold)},
	}
	if len(services) > 0 {
		details = append(details, Detail{Label: "Affected Services", Value: strings.Join(services, ", ")})
	}
	return Alert{Kind: kind, Details: details}
}
