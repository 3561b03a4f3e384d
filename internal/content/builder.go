// Package content renders the subject line and body of a vendor
// representation email from a campaign template plus candidate
// attributes. The campaign engine only consumes the rendered strings.
package content

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/benchwire/hotlist/internal/model"
)

// DefaultSubject is used when a campaign has no subject template
const DefaultSubject = "Available candidate: {{.name}} ({{.title}})"

// DefaultBody is used when a campaign has no email content
const DefaultBody = `Hello,

{{.name}} is available for new engagements.

Title: {{.title}}
Skills: {{.skills}}
Rate: ${{.rate}}/hr
Availability: {{.availability}}
{{if .work_authorization}}Work authorization: {{.work_authorization}}
{{end}}
Please reply to this email if you would like to discuss.
`

// Rendered holds the output of one render
type Rendered struct {
	Subject string
	Body    string
}

// Engine renders campaign templates with candidate data
type Engine struct{}

// NewEngine creates a new content engine
func NewEngine() *Engine {
	return &Engine{}
}

// Render produces the subject and body for one candidate. The work
// authorization token only resolves when the flag allows disclosure.
func (e *Engine) Render(subjectTmpl, bodyTmpl string, cand *model.CandidateRecord, includeWorkAuth bool) (*Rendered, error) {
	if subjectTmpl == "" {
		subjectTmpl = DefaultSubject
	}
	if bodyTmpl == "" {
		bodyTmpl = DefaultBody
	}

	data := e.tokens(cand, includeWorkAuth)

	subject, err := render("subject", subjectTmpl, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}

	body, err := render("body", bodyTmpl, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	return &Rendered{Subject: subject, Body: body}, nil
}

// Validate checks template syntax without rendering
func (e *Engine) Validate(subjectTmpl, bodyTmpl string) error {
	if subjectTmpl != "" {
		if _, err := template.New("subject").Parse(subjectTmpl); err != nil {
			return fmt.Errorf("invalid subject template: %w", err)
		}
	}
	if bodyTmpl != "" {
		if _, err := template.New("body").Parse(bodyTmpl); err != nil {
			return fmt.Errorf("invalid body template: %w", err)
		}
	}
	return nil
}

func (e *Engine) tokens(cand *model.CandidateRecord, includeWorkAuth bool) map[string]any {
	data := map[string]any{
		"name":         cand.FullName(),
		"first_name":   cand.FirstName,
		"last_name":    cand.LastName,
		"title":        cand.Title,
		"skills":       strings.Join(cand.Skills, ", "),
		"rate":         fmt.Sprintf("%.2f", cand.HourlyRate),
		"availability": cand.Availability,
	}
	if includeWorkAuth {
		data["work_authorization"] = cand.WorkAuth
	} else {
		data["work_authorization"] = ""
	}
	return data
}

func render(name, tmplStr string, data map[string]any) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
