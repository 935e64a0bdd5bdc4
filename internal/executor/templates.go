package executor

import (
	"fmt"
	"strings"
	"text/template"

	"prdsync.app/prdsync/internal/model"
)

// Each feature category gets its own body layout. The blocks section renders
// only when the feature actually blocks something.
var (
	technicalTemplate = template.Must(template.New("technical").Parse(strings.TrimSpace(`
{{.Description}}
{{- if .AcceptanceCriteria}}

## Acceptance Criteria
{{- range .AcceptanceCriteria}}
- [ ] {{.}}
{{- end}}
{{- end}}
{{- if .DependsOn}}

## Depends On
{{- range .DependsOn}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Blocks}}

## Blocks
{{- range .Blocks}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Effort}}

**Estimated effort:** {{.Effort}}
{{- end}}
{{- if .Rationale}}

---
*{{.Rationale}}*
{{- end}}
{{- if .DocumentPath}}

**Source document:** {{.DocumentPath}}
{{- end}}
`)))

	nonTechnicalTemplate = template.Must(template.New("non-technical").Parse(strings.TrimSpace(`
{{.Description}}

> Non-technical work item. No code changes expected.
{{- if .AcceptanceCriteria}}

## Done When
{{- range .AcceptanceCriteria}}
- [ ] {{.}}
{{- end}}
{{- end}}
{{- if .Rationale}}

---
*{{.Rationale}}*
{{- end}}
{{- if .DocumentPath}}

**Source document:** {{.DocumentPath}}
{{- end}}
`)))

	enablerTemplate = template.Must(template.New("enabler").Parse(strings.TrimSpace(`
{{.Description}}

> Enabler: this item unblocks other planned work.
{{- if .Blocks}}

## Blocks
{{- range .Blocks}}
- {{.}}
{{- end}}
{{- end}}
{{- if .DependsOn}}

## Depends On
{{- range .DependsOn}}
- {{.}}
{{- end}}
{{- end}}
{{- if .AcceptanceCriteria}}

## Acceptance Criteria
{{- range .AcceptanceCriteria}}
- [ ] {{.}}
{{- end}}
{{- end}}
{{- if .Effort}}

**Estimated effort:** {{.Effort}}
{{- end}}
{{- if .DocumentPath}}

**Source document:** {{.DocumentPath}}
{{- end}}
`)))
)

// bodyData is what the templates render: the feature record plus the path of
// the document it originated from.
type bodyData struct {
	model.NewFeatureRecord
	DocumentPath string
}

// RenderBody formats a feature record into a work item body using its
// category's template. Every category carries a source-document footer when
// documentPath is known.
func RenderBody(feature model.NewFeatureRecord, documentPath string) (string, error) {
	var tmpl *template.Template
	switch feature.Category {
	case model.FeatureCategoryNonTechnical:
		tmpl = nonTechnicalTemplate
	case model.FeatureCategoryEnabler:
		tmpl = enablerTemplate
	default:
		tmpl = technicalTemplate
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, bodyData{NewFeatureRecord: feature, DocumentPath: documentPath}); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", feature.Category, err)
	}
	return b.String(), nil
}

// BuildLabels assembles the label set for a created item: the generated
// marker, category, priority, then any free-form tags.
func BuildLabels(feature model.NewFeatureRecord) []string {
	labels := []string{
		model.LabelGenerated,
		fmt.Sprintf("type:%s", feature.Category),
		fmt.Sprintf("priority:%s", feature.Priority),
	}
	return append(labels, feature.Tags...)
}
