// Package plan extracts structured project plans from model output that
// follows the fixed markdown convention: a marker comment, a
// "# Project Plan: {title}" heading, then a known sequence of "## " sections.
package plan

import (
	"regexp"
	"strings"
)

// Marker is the substring that tags a response as a structured plan.
const Marker = "<!-- STRUCTURED_PLAN -->"

// DefaultTitle is used when the title heading is missing or empty.
const DefaultTitle = "Untitled Project"

// Section is one "### " subsection: its heading, any "- " bullets, and the
// remaining prose body.
type Section struct {
	Heading string   `json:"heading"`
	Bullets []string `json:"bullets,omitempty"`
	Body    string   `json:"body,omitempty"`
}

type StructuredPlan struct {
	Title        string            `json:"title"`
	Overview     map[string]string `json:"overview,omitempty"`
	Vision       string            `json:"vision,omitempty"`
	Requirements []Section         `json:"requirements,omitempty"`
	Architecture []Section         `json:"architecture,omitempty"`
	Roadmap      []Section         `json:"roadmap,omitempty"`
}

// IsStructuredPlan reports whether text carries the plan marker.
func IsStructuredPlan(text string) bool {
	return strings.Contains(text, Marker)
}

var (
	titleRe    = regexp.MustCompile(`(?m)^#\s+Project Plan:\s*(.+)$`)
	keyValueRe = regexp.MustCompile(`(?i)^-\s+\*\*(.+?)\*\*:\s*(.*)$`)
)

// ParseStructuredPlan extracts a plan from text, or returns nil when the
// marker is absent or extraction fails for any reason. Parse failures are
// non-fatal: the caller falls back to treating the message as plain text.
func ParseStructuredPlan(text string) (p *StructuredPlan) {
	if !IsStructuredPlan(text) {
		return nil
	}
	defer func() {
		if recover() != nil {
			p = nil
		}
	}()

	out := &StructuredPlan{Title: DefaultTitle}
	if m := titleRe.FindStringSubmatch(text); m != nil {
		if title := strings.TrimSpace(m[1]); title != "" {
			out.Title = title
		}
	}

	out.Overview = parseKeyValues(sectionContent(text, "Project Overview"))
	out.Vision = strings.TrimSpace(sectionContent(text, "Vision"))
	out.Requirements = parseSubsections(sectionContent(text, "Requirements"))
	out.Architecture = parseSubsections(sectionContent(text, "Architecture"))
	out.Roadmap = parseSubsections(sectionContent(text, "Roadmap"))
	return out
}

// sectionContent returns everything between "## {heading}" and the next
// "## "-level heading, or the end of text. Blank lines do not terminate a
// section. Empty string when the heading is absent.
func sectionContent(text, heading string) string {
	marker := "## " + heading
	idx := indexOfLine(text, marker)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(marker):]
	if end := indexOfLinePrefix(rest, "## "); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// parseSubsections splits section content on "### " headings. Content before
// the first subsection is ignored; each subsection yields its bullets and the
// non-bullet prose as Body.
func parseSubsections(content string) []Section {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	var out []Section
	lines := strings.Split(content, "\n")
	var cur *Section
	var body []string
	flush := func() {
		if cur == nil {
			return
		}
		cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
		out = append(out, *cur)
		cur = nil
		body = nil
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "### ") {
			flush()
			cur = &Section{Heading: strings.TrimSpace(strings.TrimPrefix(line, "### "))}
			continue
		}
		if cur == nil {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			cur.Bullets = append(cur.Bullets, strings.TrimSpace(strings.TrimPrefix(line, "- ")))
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

// parseKeyValues extracts "- **Key**: value" lines into a map. Keys keep
// their written casing; matching on the pattern is case-insensitive.
func parseKeyValues(content string) map[string]string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	out := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		if m := keyValueRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			out[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// indexOfLine returns the offset of the first line starting with prefix,
// or -1.
func indexOfLine(text, prefix string) int {
	if strings.HasPrefix(text, prefix) {
		return 0
	}
	idx := strings.Index(text, "\n"+prefix)
	if idx < 0 {
		return -1
	}
	return idx + 1
}

// indexOfLinePrefix is indexOfLine without matching at offset zero, used to
// bound a section at the next same-level heading.
func indexOfLinePrefix(text, prefix string) int {
	idx := strings.Index(text, "\n"+prefix)
	if idx < 0 {
		return -1
	}
	return idx + 1
}
