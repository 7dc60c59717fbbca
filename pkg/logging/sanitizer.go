package logging

import "regexp"

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// Matches password=xxx, pwd=xxx, pass=xxx (until next delimiter).
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass|secret)=[^;&\s]+`)

	// Matches HMAC signature headers (sha256=<hex>).
	signaturePattern = regexp.MustCompile(`(?i)sha256=[0-9a-f]{16,}`)

	// Matches bearer tokens (three base64 segments separated by dots).
	tokenPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// Matches user:pass@host credentials embedded in URLs.
	urlCredsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeEndpoint removes embedded credentials from a subscriber endpoint
// before it is logged.
func SanitizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	return urlCredsPattern.ReplaceAllString(endpoint, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError scrubs secrets, signatures and tokens from an error message
// before logging. Delivery errors can echo request headers back.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	s = signaturePattern.ReplaceAllString(s, "sha256="+RedactedText)
	s = tokenPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = urlCredsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}
