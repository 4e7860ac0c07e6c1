package promotion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/instinctd/internal/pattern"
)

// frontMatter is the YAML header written at the top of every artifact. The
// pattern_id field ties the document back to its source pattern so ledger
// entries and artifacts can be cross-referenced.
type frontMatter struct {
	Name        string  `yaml:"name"`
	Kind        string  `yaml:"kind"`
	Category    string  `yaml:"category"`
	PatternID   string  `yaml:"pattern_id"`
	Confidence  float64 `yaml:"confidence"`
	Occurrences int     `yaml:"occurrences"`
	PromotedAt  string  `yaml:"promoted_at"`
}

// renderArtifact produces the full markdown document for one promoted
// pattern: YAML front matter followed by a category-aware body.
func renderArtifact(rec *pattern.Record, kind Kind, now time.Time) ([]byte, error) {
	fm := frontMatter{
		Name:        artifactName(rec),
		Kind:        string(kind),
		Category:    rec.Category,
		PatternID:   rec.ID,
		Confidence:  rec.Confidence,
		Occurrences: rec.Occurrences,
		PromotedAt:  now.Format(time.RFC3339),
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")

	switch rec.Category {
	case pattern.CategoryWorkflowPatterns:
		renderWorkflowBody(&buf, rec)
	case pattern.CategoryErrorFixes:
		renderErrorFixBody(&buf, rec)
	default:
		renderGenericBody(&buf, rec)
	}

	return buf.Bytes(), nil
}

func renderWorkflowBody(buf *bytes.Buffer, rec *pattern.Record) {
	fmt.Fprintf(buf, "# Workflow: %s\n\n", artifactName(rec))
	fmt.Fprintf(buf, "Observed %d times with confidence %.2f.\n\n", rec.Occurrences, rec.Confidence)

	buf.WriteString("## Steps\n\n")
	if steps, ok := rec.Pattern["steps"].([]any); ok && len(steps) > 0 {
		for i, step := range steps {
			fmt.Fprintf(buf, "%d. %v\n", i+1, step)
		}
		buf.WriteString("\n")
	} else {
		buf.WriteString("```json\n")
		buf.Write(patternJSON(rec.Pattern))
		buf.WriteString("\n```\n\n")
	}

	buf.WriteString("## When to use\n\n")
	buf.WriteString("Apply this workflow when the task matches the pattern above.\n")
}

func renderErrorFixBody(buf *bytes.Buffer, rec *pattern.Record) {
	errType := stringValue(rec.Pattern, "error_type")
	fixType := stringValue(rec.Pattern, "fix_type")

	fmt.Fprintf(buf, "# Fix: %s\n\n", artifactName(rec))
	fmt.Fprintf(buf, "Paired %d times with confidence %.2f.\n\n", rec.Occurrences, rec.Confidence)

	buf.WriteString("## Error\n\n")
	fmt.Fprintf(buf, "`%s`\n\n", errType)

	buf.WriteString("## Fix\n\n")
	fmt.Fprintf(buf, "`%s`\n\n", fixType)

	buf.WriteString("## Pattern\n\n```json\n")
	buf.Write(patternJSON(rec.Pattern))
	buf.WriteString("\n```\n")
}

func renderGenericBody(buf *bytes.Buffer, rec *pattern.Record) {
	fmt.Fprintf(buf, "# Pattern: %s\n\n", artifactName(rec))
	fmt.Fprintf(buf, "Category `%s`, observed %d times with confidence %.2f.\n\n", rec.Category, rec.Occurrences, rec.Confidence)

	buf.WriteString("## Pattern\n\n```json\n")
	buf.Write(patternJSON(rec.Pattern))
	buf.WriteString("\n```\n")
}

// artifactName derives a short human-readable name from the pattern's most
// descriptive fields, falling back to the category.
func artifactName(rec *pattern.Record) string {
	for _, field := range []string{"name", "error_type", "framework", "node", "tool"} {
		if v := stringValue(rec.Pattern, field); v != "" {
			return slugify(v)
		}
	}
	return slugify(rec.Category)
}

// artifactFilename is stable per pattern so re-promotion overwrites the same
// artifact rather than accumulating copies.
func artifactFilename(rec *pattern.Record) string {
	return fmt.Sprintf("%s-%s.md", slugify(rec.Category), shortID(rec.ID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '-' || r == '/':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "pattern"
	}
	return out
}

func stringValue(v pattern.Value, key string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return ""
}

// patternJSON renders the pattern map as indented JSON. Map keys marshal in
// sorted order, so the output is stable across promotions.
func patternJSON(v pattern.Value) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return []byte("{}")
	}
	return data
}
