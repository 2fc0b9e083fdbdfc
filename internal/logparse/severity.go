package logparse

import (
	"regexp"
	"strings"

	"github.com/tinytelemetry/logops/internal/model"
)

// SeverityRegex matches common severity levels in log text.
var SeverityRegex = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\b`)

// NormalizeSeverity folds the usual severity spellings onto the four levels the
// detectors count: INFO, WARNING, ERROR and CRITICAL. TRACE and DEBUG fold into
// INFO. Unrecognized values are returned upper-cased but otherwise verbatim, so
// rate detection never counts them under a known level.
func NormalizeSeverity(severity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "":
		return model.SeverityInfo
	case "TRACE", "TRAC", "TRC", "DEBUG", "DEBU", "DBG", "DEB":
		return model.SeverityInfo
	case "INFO", "INFORMATION", "INF", "NOTICE":
		return model.SeverityInfo
	case "WARN", "WARNING", "WRNG", "WRN":
		return model.SeverityWarning
	case "ERROR", "ERR", "ERRO":
		return model.SeverityError
	case "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC", "EMERG", "ALERT":
		return model.SeverityCritical
	default:
		if len(normalized) >= 4 {
			switch normalized[:4] {
			case "INFO", "DEBU", "TRAC":
				return model.SeverityInfo
			case "WARN":
				return model.SeverityWarning
			case "ERRO":
				return model.SeverityError
			case "FATA", "CRIT":
				return model.SeverityCritical
			}
		}
		return normalized
	}
}

// IsKnownSeverity reports whether severity is one of the four canonical levels.
func IsKnownSeverity(severity string) bool {
	switch severity {
	case model.SeverityInfo, model.SeverityWarning, model.SeverityError, model.SeverityCritical:
		return true
	}
	return false
}

// ExtractSeverityFromText extracts severity level from log message text.
func ExtractSeverityFromText(message string) string {
	matches := SeverityRegex.FindStringSubmatch(message)
	if len(matches) > 1 {
		return NormalizeSeverity(matches[1])
	}
	return model.SeverityInfo
}

// SeverityFromOTELNumber converts an OpenTelemetry SeverityNumber (1-24) to a level.
// Zero (unspecified) returns an empty string.
func SeverityFromOTELNumber(n int32) string {
	switch {
	case n <= 0:
		return ""
	case n <= 12:
		return model.SeverityInfo
	case n <= 16:
		return model.SeverityWarning
	case n <= 20:
		return model.SeverityError
	default:
		return model.SeverityCritical
	}
}
