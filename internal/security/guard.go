// Package security screens user-supplied source text before it is sent to
// the extraction model and validates paths taken from requests and the
// inbox directory.
package security

import "fmt"

// Report describes what Inspect found in a piece of source text
type Report struct {
	Injection bool
	Secrets   []string
}

// Clean reports whether nothing was flagged
func (r Report) Clean() bool {
	return !r.Injection && len(r.Secrets) == 0
}

// Flags lists the findings as short labels for logging
func (r Report) Flags() []string {
	var flags []string
	if r.Injection {
		flags = append(flags, "prompt_injection")
	}
	for _, s := range r.Secrets {
		flags = append(flags, fmt.Sprintf("secret:%s", s))
	}
	return flags
}

type Guard struct {
	secrets   *SecretScanner
	injection *PromptInjectionDetector
}

func NewGuard() *Guard {
	return &Guard{
		secrets:   NewSecretScanner(),
		injection: NewPromptInjectionDetector(),
	}
}

// Inspect looks for instruction-like phrases and credentials in text
func (g *Guard) Inspect(text string) Report {
	var r Report
	r.Injection = g.injection.Detect(text)
	seen := map[string]bool{}
	for _, m := range g.secrets.Scan(text) {
		if !seen[m.Type] {
			seen[m.Type] = true
			r.Secrets = append(r.Secrets, m.Type)
		}
	}
	return r
}

// Prepare returns text with credentials redacted, plus the report for the
// original text.
func (g *Guard) Prepare(text string) (string, Report) {
	r := g.Inspect(text)
	if len(r.Secrets) == 0 {
		return text, r
	}
	return g.secrets.Redact(text), r
}

var DefaultGuard = NewGuard()

func Inspect(text string) Report {
	return DefaultGuard.Inspect(text)
}

func Prepare(text string) (string, Report) {
	return DefaultGuard.Prepare(text)
}
