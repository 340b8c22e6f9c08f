// Package template implements the narrow templating language used for
// workflow outputs and sink payloads (spec §4.5, §6, §9). It is
// deliberately not a general-purpose templating runtime: it supports only
// `{{ .path }}` substitution with two pipes, `default` and `toJSON`. There
// is no arbitrary function execution, no file access, and no control flow.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// pathPattern admits only `.`-separated field names with optional `[n]`
// indexes, so gojq never sees a function call or any other jq construct.
var pathPattern = regexp.MustCompile(`^(\.|(\.[A-Za-z_][A-Za-z0-9_]*(\[[0-9]+\])*)+)$`)

// expr is one parsed `{{ ... }}` placeholder.
type expr struct {
	path         string // e.g. ".steps.diagnose.output.pod_name"
	defaultValue string
	hasDefault   bool
	toJSON       bool
}

// Render substitutes every `{{ .path }}` placeholder in tmpl against ctx and
// returns the result. Rendering is pure and deterministic: the same
// (tmpl, ctx) pair always produces the same output (spec §8 "Template
// determinism"). A path that resolves to a missing key or an explicit null
// renders as an empty string unless a `| default "..."` pipe supplies a
// fallback (spec §4.5 edge policy).
func Render(tmpl string, ctx map[string]interface{}) (string, error) {
	normalized, err := normalize(ctx)
	if err != nil {
		return "", fmt.Errorf("template: normalizing context: %w", err)
	}

	var out bytes.Buffer
	rest := tmpl

	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])

		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("template: unterminated {{ in %q", tmpl)
		}
		end += start

		raw := strings.TrimSpace(rest[start+2 : end])
		rest = rest[end+2:]

		e, err := parseExpr(raw)
		if err != nil {
			return "", err
		}

		rendered, err := renderExpr(e, normalized)
		if err != nil {
			return "", err
		}
		out.WriteString(rendered)
	}

	return out.String(), nil
}

// normalize round-trips ctx through JSON so gojq sees only the value
// shapes it understands (map[string]interface{}, []interface{}, string,
// float64, bool, nil) rather than domain structs like decimal.Decimal or
// time.Time.
func normalize(ctx map[string]interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(ctx)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseExpr parses the body of a `{{ ... }}` placeholder: a dot-path
// optionally followed by `| default "literal"` and/or `| toJSON`.
func parseExpr(raw string) (expr, error) {
	parts := strings.Split(raw, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	e := expr{path: parts[0]}
	if e.path == "" {
		return expr{}, fmt.Errorf("template: empty path in %q", raw)
	}
	if !pathPattern.MatchString(e.path) {
		return expr{}, fmt.Errorf("template: unsupported path %q", e.path)
	}

	for _, pipe := range parts[1:] {
		switch {
		case pipe == "toJSON":
			e.toJSON = true
		case strings.HasPrefix(pipe, "default "):
			lit := strings.TrimSpace(strings.TrimPrefix(pipe, "default "))
			unquoted, err := unquote(lit)
			if err != nil {
				return expr{}, fmt.Errorf("template: invalid default literal %q: %w", lit, err)
			}
			e.defaultValue = unquoted
			e.hasDefault = true
		default:
			return expr{}, fmt.Errorf("template: unsupported pipe %q", pipe)
		}
	}

	return e, nil
}

func unquote(s string) (string, error) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strconv.Unquote(s)
	}
	return s, nil
}

// renderExpr resolves the path against ctx via gojq and formats the result.
func renderExpr(e expr, ctx map[string]interface{}) (string, error) {
	query, err := gojq.Parse(e.path)
	if err != nil {
		return "", fmt.Errorf("template: invalid path %q: %w", e.path, err)
	}

	iter := query.Run(ctx)
	v, ok := iter.Next()
	if !ok {
		return e.fallback(), nil
	}
	if err, ok := v.(error); ok {
		// gojq surfaces a missing-field traversal as a "not found" error
		// for some input shapes; treat it the same as a missing value
		// rather than a template failure.
		if strings.Contains(err.Error(), "not found") {
			return e.fallback(), nil
		}
		return "", fmt.Errorf("template: resolving %q: %w", e.path, err)
	}

	if v == nil {
		return e.fallback(), nil
	}

	if e.toJSON {
		b, jerr := json.Marshal(v)
		if jerr != nil {
			return "", fmt.Errorf("template: marshaling %q: %w", e.path, jerr)
		}
		return string(b), nil
	}

	return formatScalar(v), nil
}

func (e expr) fallback() string {
	if e.hasDefault {
		return e.defaultValue
	}
	return ""
}

func formatScalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
