package security

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted value.
const RedactPlaceholder = "[redacted]"

// minLiteralLen guards against literals so short that replacing them would
// mangle unrelated text (or the placeholder itself).
const minLiteralLen = 4

// quotedValue matches a double-quoted (JSON-escaped), single-quoted, or
// bracketed value. A bracketed value covers the placeholder itself, so a
// second pass rewrites it to the same text.
const quotedValue = `"(?:[^"\\\n]|\\.)*"|'[^'\n]*'|\[[^\]\n]*\]`

// keyValueRule redacts the value of token/secret/password/api_key/apikey
// assignments, keeping the key, separator, quoting, and any bearer scheme.
var keyValueRule = regexp.MustCompile(`(?i)(token|secret|password|api_key|apikey)(["']?[ \t]*[:=][ \t]*)(bearer[ \t]+)?(` +
	quotedValue + `|["']?[^\s"',;}\[\]]+)`)

// authorizationRule redacts the credential of an Authorization header.
var authorizationRule = regexp.MustCompile(`(?i)(authorization[ \t]*:[ \t]*bearer[ \t]+)(` +
	quotedValue + `|["']?[^\s"',\[]+)`)

// bareBearerRule redacts bearer tokens outside a header.
var bareBearerRule = regexp.MustCompile(`(?i)\b(bearer[ \t]+)[A-Za-z0-9\-._~+/]{16,}=*`)

// redactAssignments replaces the last group of every match of re with the
// placeholder, keeping the rest of the match verbatim.
func redactAssignments(re *regexp.Regexp, text string) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[len(m)-2], m[len(m)-1]
		b.WriteString(text[last:start])
		b.WriteString(redactValue(text[start:end]))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// redactValue replaces v with the placeholder, keeping surrounding quotes.
// Empty quoted values stay empty.
func redactValue(v string) string {
	n := len(v)
	if n == 0 || (v[0] != '"' && v[0] != '\'') {
		return RedactPlaceholder
	}
	if n >= 2 && v[n-1] == v[0] {
		if n == 2 {
			return v
		}
		return v[:1] + RedactPlaceholder + v[n-1:]
	}
	return v[:1] + RedactPlaceholder
}

// DefaultPatterns returns compiled patterns for provider API key shapes.
// The specific prefixes run before the generic sk- rule.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
		regexp.MustCompile(`sk-[A-Za-z0-9]{10,}`),
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		regexp.MustCompile(`xox[bp]-[0-9]+-[a-zA-Z0-9]+`),
	}
}

// Redactor scrubs secrets from text and JSON-serializable values. Known
// literals (the server secret, gateway tokens) are registered at runtime;
// call-specific secrets can be passed per call. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor with the default provider key patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddLiteral registers a secret value that is always redacted.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < minLiteralLen {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals[:len(r.literals):len(r.literals)], secret)
}

// SetLiterals replaces the registered literals, e.g. after the server
// secret is rotated.
func (r *Redactor) SetLiterals(secrets ...string) {
	next := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) >= minLiteralLen {
			next = append(next, s)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = next
}

// Redact is RedactText without call-specific secrets. It satisfies the
// slog handler's needs.
func (r *Redactor) Redact(s string) string {
	return r.RedactText(s)
}

// RedactText scrubs text in a fixed order: literal secrets, key/value
// assignments, bearer credentials, then provider key shapes. Running it on
// its own output is a no-op.
func (r *Redactor) RedactText(text string, secrets ...string) string {
	if text == "" {
		return text
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	all := make([]string, 0, len(literals)+len(secrets))
	all = append(append(all, literals...), secrets...)
	for _, lit := range all {
		if len(lit) < minLiteralLen || strings.Contains(RedactPlaceholder, lit) {
			continue
		}
		text = strings.ReplaceAll(text, lit, RedactPlaceholder)
	}

	text = redactAssignments(keyValueRule, text)
	text = redactAssignments(authorizationRule, text)
	text = bareBearerRule.ReplaceAllString(text, "${1}"+RedactPlaceholder)
	for _, p := range patterns {
		text = p.ReplaceAllString(text, RedactPlaceholder)
	}
	return text
}

// RedactObject applies RedactText to v by round-tripping it through JSON.
// When the redacted text no longer parses, the result is
// {"redacted": <text>}. It never returns the unredacted value.
func (r *Redactor) RedactObject(v any, secrets ...string) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"redacted": RedactPlaceholder}
	}
	text := r.RedactText(string(raw), secrets...)
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return map[string]any{"redacted": text}
	}
	return out
}

var defaultRedactor = NewRedactor()

// RedactText scrubs text with the default patterns and the given secrets.
func RedactText(text string, secrets ...string) string {
	return defaultRedactor.RedactText(text, secrets...)
}

// RedactObject scrubs v with the default patterns and the given secrets.
func RedactObject(v any, secrets ...string) any {
	return defaultRedactor.RedactObject(v, secrets...)
}
