package masking

import "strings"

const maskToken = "****"

// MaskCode redacts a payment or ticket code while keeping a short suffix so
// operators can correlate audit entries with receipts.
func MaskCode(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 2 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-2:]
}

// MaskPhone keeps the dialing prefix and the last two digits.
func MaskPhone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	prefix := ""
	if strings.HasPrefix(trimmed, "+") && len(trimmed) > 4 {
		prefix = trimmed[:4]
		trimmed = trimmed[4:]
	}
	if len(trimmed) <= 2 {
		return prefix + maskToken
	}
	return prefix + maskToken + trimmed[len(trimmed)-2:]
}
