package classify

import (
	"strings"
)

// Severity grades a validation failure for downstream surfacing.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error categories attached to relations that fail validation.
const (
	CategoryEmptyTarget   = "validation_empty_target"
	CategoryTooLong       = "validation_too_long"
	CategoryControlChars  = "validation_control_chars"
	CategorySecurityRisk  = "security_risk"
	CategoryPathTraversal = "validation_path_traversal"
	CategoryAbsolutePath  = "validation_absolute_path"
	CategoryInvalidPath   = "validation_invalid_path"
	CategoryTooDeep       = "validation_too_deep"
	CategorySuspicious    = "security_suspicious"
)

const (
	maxTargetLength = 2048
	maxSeparators   = 20
)

// ValidationError describes why a link target was rejected. The relation
// is still stored; the error rides along as metadata so the author's
// intent is never lost.
type ValidationError struct {
	Type        string
	Category    string
	Severity    Severity
	Message     string
	Suggestions []string
}

var dangerousSchemes = []string{
	"javascript:",
	"vbscript:",
	"data:text/html",
	"file://",
}

// externalSchemes are the schemes treated as external (non-dangerous
// variants only; data: URLs pass here only after the dangerous-scheme
// check above rejected data:text/html).
var externalSchemes = []string{
	"http", "https", "ftp", "ftps", "git", "ssh", "mailto", "tel", "data",
}

// validateTarget checks a raw link target and returns nil when it is
// acceptable.
func validateTarget(target string) *ValidationError {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return &ValidationError{
			Type:        "empty_target",
			Category:    CategoryEmptyTarget,
			Severity:    SeverityLow,
			Message:     "link target is empty",
			Suggestions: []string{"remove the link or fill in a target"},
		}
	}
	if len(target) > maxTargetLength {
		return &ValidationError{
			Type:        "target_too_long",
			Category:    CategoryTooLong,
			Severity:    SeverityMedium,
			Message:     "link target exceeds 2048 characters",
			Suggestions: []string{"shorten the target path or URL"},
		}
	}
	for _, r := range target {
		if r < 0x20 && r != '\t' || r == 0x7f {
			return &ValidationError{
				Type:        "control_characters",
				Category:    CategoryControlChars,
				Severity:    SeverityHigh,
				Message:     "link target contains control characters",
				Suggestions: []string{"remove non-printable characters from the target"},
			}
		}
	}

	lower := strings.ToLower(trimmed)
	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(lower, scheme) {
			return &ValidationError{
				Type:        "dangerous_scheme",
				Category:    CategorySecurityRisk,
				Severity:    SeverityCritical,
				Message:     "link target uses a dangerous URL scheme",
				Suggestions: []string{"use an https URL or a vault-relative path"},
			}
		}
	}

	if strings.Contains(lower, "<script") || strings.Contains(lower, "</script") {
		return &ValidationError{
			Type:        "script_injection",
			Category:    CategorySuspicious,
			Severity:    SeverityCritical,
			Message:     "link target contains a script tag",
			Suggestions: []string{"remove HTML from the target"},
		}
	}
	if strings.Count(lower, "%") > 10 {
		return &ValidationError{
			Type:        "excessive_encoding",
			Category:    CategorySuspicious,
			Severity:    SeverityHigh,
			Message:     "link target is excessively percent-encoded",
			Suggestions: []string{"decode the target and link to the plain path"},
		}
	}

	if isExternalTarget(trimmed) {
		return nil
	}

	// Local path rules.
	if strings.Contains(trimmed, "..") {
		return &ValidationError{
			Type:        "path_traversal",
			Category:    CategoryPathTraversal,
			Severity:    SeverityCritical,
			Message:     "link target traverses outside the vault",
			Suggestions: []string{"link with a vault-relative path"},
		}
	}
	if strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "\\") ||
		(len(trimmed) > 2 && trimmed[1] == ':' && (trimmed[2] == '\\' || trimmed[2] == '/')) {
		return &ValidationError{
			Type:        "absolute_path",
			Category:    CategoryAbsolutePath,
			Severity:    SeverityMedium,
			Message:     "link target is an absolute path",
			Suggestions: []string{"use a path relative to the vault root"},
		}
	}
	if strings.ContainsAny(trimmed, "<>\"|*") {
		return &ValidationError{
			Type:        "invalid_characters",
			Category:    CategoryInvalidPath,
			Severity:    SeverityMedium,
			Message:     "link target contains characters invalid in paths",
			Suggestions: []string{"rename the target without <>\"|* characters"},
		}
	}
	if strings.Count(trimmed, "/")+strings.Count(trimmed, "\\") > maxSeparators {
		return &ValidationError{
			Type:        "path_too_deep",
			Category:    CategoryTooDeep,
			Severity:    SeverityLow,
			Message:     "link target nests more than 20 directories deep",
			Suggestions: []string{"flatten the vault layout or shorten the path"},
		}
	}
	return nil
}

// isExternalTarget reports whether the target is an external URL with a
// supported scheme. Dangerous schemes never reach here: validation
// rejects them first.
func isExternalTarget(target string) bool {
	lower := strings.ToLower(target)
	for _, scheme := range externalSchemes {
		if strings.HasPrefix(lower, scheme+":") {
			return true
		}
	}
	return false
}
