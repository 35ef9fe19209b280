package logs

import (
	"regexp"

	"go.uber.org/zap/zapcore"
)

// SecretSanitizer wraps a zapcore.Core to sanitize sensitive values from logs.
type SecretSanitizer struct {
	zapcore.Core
	patterns []*secretPattern
}

// secretPattern defines a pattern for detecting and masking secrets.
type secretPattern struct {
	name     string
	regex    *regexp.Regexp
	maskFunc func(string) string
}

// NewSecretSanitizer creates a sanitizing core that wraps the provided core.
func NewSecretSanitizer(core zapcore.Core) *SecretSanitizer {
	s := &SecretSanitizer{
		Core:     core,
		patterns: make([]*secretPattern, 0),
	}
	s.registerDefaultPatterns()
	return s
}

// registerDefaultPatterns registers patterns for the secret formats this
// product handles.
func (s *SecretSanitizer) registerDefaultPatterns() {
	// Encrypted credential records ("<iv_hex>:<ciphertext_hex>"). Even
	// ciphertext stays out of the logs.
	s.patterns = append(s.patterns, &secretPattern{
		name:  "encrypted_credential",
		regex: regexp.MustCompile(`\b[a-f0-9]{32}:[a-f0-9]{32,}\b`),
		maskFunc: func(string) string {
			return "[encrypted]"
		},
	})

	// n8n API keys (JWT-shaped bearer secrets).
	s.patterns = append(s.patterns, &secretPattern{
		name:  "jwt",
		regex: regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]{10,}\.[A-Za-z0-9_\-]{10,}\.[A-Za-z0-9_\-]{10,}\b`),
		maskFunc: func(token string) string {
			return token[:6] + "***"
		},
	})

	// Generic Bearer tokens.
	s.patterns = append(s.patterns, &secretPattern{
		name:  "bearer_token",
		regex: regexp.MustCompile(`\bBearer\s+[A-Za-z0-9\-._~+/]+=*`),
		maskFunc: func(string) string {
			return "Bearer ***"
		},
	})
}

// sanitize applies all registered patterns to a string.
func (s *SecretSanitizer) sanitize(value string) string {
	for _, pattern := range s.patterns {
		value = pattern.regex.ReplaceAllStringFunc(value, pattern.maskFunc)
	}
	return value
}

// Check implements zapcore.Core.
func (s *SecretSanitizer) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return checked.AddCore(entry, s)
	}
	return checked
}

// Write implements zapcore.Core, masking secrets in the message and in all
// string fields before delegating.
func (s *SecretSanitizer) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = s.sanitize(entry.Message)

	sanitized := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		if field.Type == zapcore.StringType {
			field.String = s.sanitize(field.String)
		}
		sanitized[i] = field
	}

	return s.Core.Write(entry, sanitized)
}

// With implements zapcore.Core.
func (s *SecretSanitizer) With(fields []zapcore.Field) zapcore.Core {
	sanitized := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		if field.Type == zapcore.StringType {
			field.String = s.sanitize(field.String)
		}
		sanitized[i] = field
	}

	return &SecretSanitizer{
		Core:     s.Core.With(sanitized),
		patterns: s.patterns,
	}
}
