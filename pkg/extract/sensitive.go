package extract

import "regexp"

var sensitiveRe = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|token|bearer\s+[a-z0-9\-_.]+|sk-[a-z0-9]{10,})`)

// IsSensitive reports whether content looks like it carries a credential.
func IsSensitive(content string) bool {
	return sensitiveRe.MatchString(content)
}
