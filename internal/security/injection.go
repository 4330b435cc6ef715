package security

import (
	"regexp"
	"strings"
)

// PromptInjectionDetector flags pasted text or page content that tries to
// give the extraction model new instructions.
type PromptInjectionDetector struct {
	literalPatterns []string
	regexPatterns   []*regexp.Regexp
}

var injectionLiterals = []string{
	"ignore previous instructions",
	"ignore all previous",
	"disregard all previous",
	"forget all previous",
	"ignore the above",
	"disregard the above",
	"your new instructions",
	"your new task",
	"system override",
	"jailbreak",
	"developer mode",
}

var injectionRegexes = []string{
	`(?i)ignore\s+(all\s+)?(previous|above)\s+(instructions?|prompts?|rules?|directives?)`,
	`(?i)disregard\s+(all\s+)?(previous|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)forget\s+(all\s+)?(previous|above)\s+(instructions?|context)`,
	`(?i)(pretend|act)\s+(that\s+)?you\s+are\s+(a|an|the)\s+`,
	`(?i)(override|bypass)\s+(all\s+)?(rules?|restrictions?|filters?)`,
	`(?i)system:\s*you\s+must`,
	`<\|[a-z_]+\|>`,
	`(?i)\[system\].*\[/system\]`,
	`(?i)###\s*(instruction|system)`,
	`(?i)return\s+(an?\s+)?empty\s+(json|list|array)`,
}

func NewPromptInjectionDetector() *PromptInjectionDetector {
	detector := &PromptInjectionDetector{
		literalPatterns: make([]string, len(injectionLiterals)),
		regexPatterns:   make([]*regexp.Regexp, 0, len(injectionRegexes)),
	}

	for i, lit := range injectionLiterals {
		detector.literalPatterns[i] = strings.ToLower(lit)
	}
	for _, pattern := range injectionRegexes {
		detector.regexPatterns = append(detector.regexPatterns, regexp.MustCompile(pattern))
	}

	return detector
}

func (d *PromptInjectionDetector) Detect(input string) bool {
	inputLower := strings.ToLower(input)

	for _, lit := range d.literalPatterns {
		if strings.Contains(inputLower, lit) {
			return true
		}
	}

	for _, re := range d.regexPatterns {
		if re.MatchString(input) {
			return true
		}
	}

	return false
}

func DetectPromptInjection(input string) bool {
	return NewPromptInjectionDetector().Detect(input)
}
