// Package personalize tailors template subjects and bodies to a specific
// lead before delivery. The default implementation substitutes lead fields
// through Go text/template; the anthropic subpackage rewrites the message
// with an LLM instead.
package personalize

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/nurturemesh/core"
)

// VariablePersonalizer renders {{.first_name}}-style placeholders from the
// lead's fields. Unknown placeholders render empty rather than failing the
// delivery.
type VariablePersonalizer struct{}

// NewVariablePersonalizer constructs the template-substitution personalizer.
func NewVariablePersonalizer() *VariablePersonalizer { return &VariablePersonalizer{} }

// Personalize renders subject and body against the lead's variable map.
func (p *VariablePersonalizer) Personalize(_ context.Context, tmpl core.Template, lead core.Lead) (string, string, error) {
	vars := Variables(lead)
	subject, err := render(tmpl.Subject, vars)
	if err != nil {
		return "", "", fmt.Errorf("personalize subject of %s: %w", tmpl.ID, err)
	}
	body, err := render(tmpl.Body, vars)
	if err != nil {
		return "", "", fmt.Errorf("personalize body of %s: %w", tmpl.ID, err)
	}
	return subject, body, nil
}

// Variables builds the substitution map exposed to templates. String
// values keep missing keys rendering as empty instead of "<no value>".
func Variables(lead core.Lead) map[string]string {
	return map[string]string{
		"first_name":  lead.FirstName,
		"last_name":   lead.LastName,
		"full_name":   lead.FullName(),
		"email":       lead.Email,
		"company":     lead.Company,
		"job_title":   lead.JobTitle,
		"industry":    lead.Industry,
		"pain_points": strings.Join(lead.PainPoints, ", "),
	}
}

// render replaces template variables using Go's text/template package.
func render(text string, vars map[string]string) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}
	tmpl, err := template.New("message").Option("missingkey=zero").Funcs(template.FuncMap{
		"default": func(defaultVal, val string) string {
			if val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
		},
	}).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Interface compliance (compile-time assertion)
var _ core.Personalizer = (*VariablePersonalizer)(nil)
