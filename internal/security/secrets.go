package security

import (
	"regexp"
)

type SecretMatch struct {
	Type  string
	Start int
	End   int
}

// SecretScanner finds credentials that people paste along with itineraries,
// for example from a booking confirmation email. Plain passwords such as
// venue Wi-Fi codes are left alone since they are part of the trip details.
type SecretScanner struct {
	patterns []*secretPattern
}

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

var defaultSecretPatterns = []struct {
	name       string
	pattern    string
	redactWith string
}{
	{"AWS Access Key", `AKIA[0-9A-Z]{16}`, "AKIA****"},
	{"GitHub Token", `gh[pousr]_[0-9a-zA-Z]{36}`, "gh*_****"},
	{"Slack Token", `xox[baprs]-[0-9]{10,13}-[0-9]{10,13}-[a-zA-Z0-9]{24}`, "xox*-****"},
	{"Stripe Key", `sk_live_[0-9a-zA-Z]{24}`, "sk_live_****"},
	{"Google API Key", `AIza[0-9A-Za-z\-_]{35}`, "AIza****"},
	{"OpenAI API Key", `sk-(proj-)?[a-zA-Z0-9_\-]{32,}`, "sk-****"},
	{"Generic API Key", `(?i)(api[_-]?key|apikey|access[_-]?key)['"]?\s*[:=]\s*['"]?[0-9a-zA-Z\-_]{20,}['"]?`, "API_KEY****"},
	{"Private Key", `-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`, "PRIVATE_KEY****"},
	{"JWT Token", `eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`, "eyJ****"},
	{"Database URL", `(?i)(postgres|postgresql|mysql|mongodb|redis)://[^\s'"]+:[^\s'"]+@[^\s'"]+`, "DB_URL****"},
}

func NewSecretScanner() *SecretScanner {
	scanner := &SecretScanner{
		patterns: make([]*secretPattern, 0, len(defaultSecretPatterns)),
	}

	for _, p := range defaultSecretPatterns {
		scanner.patterns = append(scanner.patterns, &secretPattern{
			name:       p.name,
			regex:      regexp.MustCompile(p.pattern),
			redactWith: p.redactWith,
		})
	}

	return scanner
}

func (s *SecretScanner) Scan(input string) []SecretMatch {
	var matches []SecretMatch

	for _, pattern := range s.patterns {
		for _, loc := range pattern.regex.FindAllStringIndex(input, -1) {
			matches = append(matches, SecretMatch{
				Type:  pattern.name,
				Start: loc[0],
				End:   loc[1],
			})
		}
	}

	return matches
}

func (s *SecretScanner) HasSecrets(input string) bool {
	return len(s.Scan(input)) > 0
}

func (s *SecretScanner) Redact(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.regex.ReplaceAllString(result, pattern.redactWith)
	}
	return result
}

func RedactSecrets(input string) string {
	return NewSecretScanner().Redact(input)
}
