package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/incidentctl/controlplane/pkg/model"
)

// directiveKind tags what an LLM response was parsed as: a structured final
// result, a tool-call directive, or unparseable. Approval requests are not
// parsed from the response; the agent loop raises them from the risk of a
// tool call.
type directiveKind int

const (
	directiveUnparseable directiveKind = iota
	directiveToolCall
	directiveFinalResult
)

var toolCallPattern = regexp.MustCompile(`(?m)^\s*TOOL:\s*([a-zA-Z0-9_]+)\s+(\{.*\})\s*$`)

// directive is the parsed shape of one LLM response.
type directive struct {
	kind     directiveKind
	toolCall *model.PendingToolCall
	result   *model.AgentResult
}

// parseResponse implements spec §4.6 step 3. A response containing
// "ROOT CAUSE", "FINDINGS:" or "RECOMMENDATIONS:" (case-insensitive) is
// treated as the terminal result; a response carrying a `TOOL: name {...}`
// line is a tool-call directive; anything else is unparseable and the
// caller retries with a corrective message.
func parseResponse(text string) directive {
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "ROOT CAUSE") || strings.Contains(upper, "FINDINGS:") || strings.Contains(upper, "RECOMMENDATIONS:") {
		return directive{kind: directiveFinalResult, result: parseFinalResult(text)}
	}

	if m := toolCallPattern.FindStringSubmatch(text); m != nil {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
			return directive{kind: directiveUnparseable}
		}
		return directive{kind: directiveToolCall, toolCall: &model.PendingToolCall{ToolName: m[1], Args: args}}
	}

	return directive{kind: directiveUnparseable}
}

// sectionHeaders lists the "HEADER:" lines splitSections recognizes; each
// section's body runs up to the next header or end of text.
var sectionHeaders = []string{"ROOT CAUSE", "FINDINGS", "RECOMMENDATIONS", "AUTO-FIX", "CONFIDENCE"}

// parseFinalResult implements spec §4.6 step 6: parse the textual response
// into an AgentResult's sections, filling defaults where a section is
// absent.
func parseFinalResult(text string) *model.AgentResult {
	sections := splitSections(text)

	result := &model.AgentResult{
		Summary:         firstLine(text),
		RootCause:       strings.TrimSpace(sections["ROOT CAUSE"]),
		Findings:        bulletList(sections["FINDINGS"]),
		Recommendations: bulletList(sections["RECOMMENDATIONS"]),
		Confidence:      parseConfidence(sections["CONFIDENCE"]),
	}

	autoFix := strings.TrimSpace(sections["AUTO-FIX"])
	if strings.HasPrefix(strings.ToLower(autoFix), "yes") {
		result.CanAutoFix = true
		result.FixCommand = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(autoFix[3:], " -"), " "))
	}

	if result.Summary == "" {
		result.Summary = result.RootCause
	}

	return result
}

func splitSections(text string) map[string]string {
	sections := map[string]string{}
	lines := strings.Split(text, "\n")

	currentHeader := ""
	var buf strings.Builder

	flush := func() {
		if currentHeader != "" {
			sections[currentHeader] = buf.String()
		}
		buf.Reset()
	}

	for _, line := range lines {
		matchedHeader := ""
		for _, h := range sectionHeaders {
			prefix := h + ":"
			if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), prefix) {
				matchedHeader = h
				trimmed := strings.TrimSpace(line)
				rest := strings.TrimSpace(trimmed[len(prefix):])
				flush()
				currentHeader = h
				if rest != "" {
					buf.WriteString(rest)
					buf.WriteString("\n")
				}
				break
			}
		}
		if matchedHeader != "" {
			continue
		}
		if currentHeader != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()

	return sections
}

func bulletList(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimPrefix(trimmed, "-")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstLine(text string) string {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
	return strings.TrimSpace(lines[0])
}

func parseConfidence(body string) decimal.Decimal {
	body = strings.TrimSpace(body)
	if body == "" {
		return decimal.NewFromFloat(0.5)
	}
	d, err := decimal.NewFromString(body)
	if err != nil {
		return decimal.NewFromFloat(0.5)
	}
	return d
}
