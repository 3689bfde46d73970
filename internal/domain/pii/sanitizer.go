package pii

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// Result carries the sanitized copy of a parameters mapping plus every
// finding. The sanitized copy is what enters the audit log and response
// payloads; the original mapping is left untouched.
type Result struct {
	// Parameters is a deep copy with every detected span masked.
	Parameters map[string]interface{}
	// Findings locates each masked span.
	Findings []Finding
	// LowConfidence is true when the scan deadline expired mid-walk and
	// remaining leaves were scanned with the reduced detector set only.
	LowConfidence bool
}

// Sanitizer walks a parameters mapping and masks detected entities in
// all string leaves. Numeric and boolean leaves pass through unchanged.
type Sanitizer struct {
	detector *Detector
}

// NewSanitizer creates a sanitizer over the default detector.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{detector: NewDetector()}
}

// Sanitize deep-copies params with every detected span replaced by its
// entity mask. Map keys are visited in sorted order so findings are
// stable for a given input. If ctx's deadline expires during the walk,
// remaining leaves fall back to the fast detector subset and the result
// is flagged LowConfidence.
func (s *Sanitizer) Sanitize(ctx context.Context, params map[string]interface{}) Result {
	res := Result{}
	res.Parameters = s.sanitizeMap(ctx, params, "", &res)
	return res
}

func (s *Sanitizer) sanitizeMap(ctx context.Context, m map[string]interface{}, prefix string, res *Result) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]interface{}, len(m))
	for _, k := range keys {
		out[k] = s.sanitizeValue(ctx, m[k], joinPath(prefix, k), res)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(ctx context.Context, v interface{}, path string, res *Result) interface{} {
	switch val := v.(type) {
	case string:
		return s.sanitizeString(ctx, val, path, res)
	case map[string]interface{}:
		return s.sanitizeMap(ctx, val, path, res)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(ctx, item, joinPath(path, strconv.Itoa(i)), res)
		}
		return out
	default:
		// Numbers, booleans, nil pass through.
		return v
	}
}

func (s *Sanitizer) sanitizeString(ctx context.Context, text, path string, res *Result) string {
	var spans []Span
	if ctx.Err() != nil {
		res.LowConfidence = true
		spans = s.detector.DetectFast(text)
	} else {
		spans = s.detector.Detect(text)
	}
	if len(spans) == 0 {
		return text
	}

	for _, sp := range spans {
		res.Findings = append(res.Findings, Finding{
			EntityType: sp.Entity,
			Path:       path,
			Start:      sp.Start,
			End:        sp.End,
			Confidence: sp.Confidence,
		})
	}

	// Rebuild front to back; spans are sorted by start and do not overlap.
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, sp := range spans {
		b.WriteString(text[last:sp.Start])
		b.WriteString(sp.Entity.Mask())
		last = sp.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
