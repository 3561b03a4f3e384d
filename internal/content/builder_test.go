package content

import (
	"strings"
	"testing"

	"github.com/benchwire/hotlist/internal/model"
)

func testCandidate() *model.CandidateRecord {
	return &model.CandidateRecord{
		Ref:          "cand-a",
		FirstName:    "Priya",
		LastName:     "Sharma",
		Email:        "priya@example.com",
		Title:        "Senior Java Developer",
		Skills:       []string{"Java", "Spring Boot", "Kafka"},
		HourlyRate:   85,
		Availability: "2 weeks",
		WorkAuth:     "H1B",
	}
}

func TestRenderDefaults(t *testing.T) {
	e := NewEngine()

	out, err := e.Render("", "", testCandidate(), false)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if out.Subject != "Available candidate: Priya Sharma (Senior Java Developer)" {
		t.Errorf("Subject = %q", out.Subject)
	}
	if !strings.Contains(out.Body, "Java, Spring Boot, Kafka") {
		t.Errorf("Body missing skills: %q", out.Body)
	}
	if !strings.Contains(out.Body, "$85.00/hr") {
		t.Errorf("Body missing rate: %q", out.Body)
	}
	if !strings.Contains(out.Body, "Availability: 2 weeks") {
		t.Errorf("Body missing availability: %q", out.Body)
	}
}

func TestRenderWorkAuthGating(t *testing.T) {
	e := NewEngine()
	cand := testCandidate()

	// disclosure off: the token resolves empty even when the template
	// asks for it
	out, err := e.Render("", "Auth: {{.work_authorization}}", cand, false)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out.Body, "H1B") {
		t.Errorf("work auth leaked with disclosure off: %q", out.Body)
	}

	// disclosure on
	out, err = e.Render("", "Auth: {{.work_authorization}}", cand, true)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out.Body, "H1B") {
		t.Errorf("work auth missing with disclosure on: %q", out.Body)
	}

	// default body drops the whole line when disclosure is off
	out, err = e.Render("", "", cand, false)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out.Body, "Work authorization") {
		t.Errorf("default body shows work auth line with disclosure off: %q", out.Body)
	}
}

func TestRenderCustomTemplates(t *testing.T) {
	e := NewEngine()

	out, err := e.Render(
		"{{.first_name}} - {{.title}}",
		"Rate ${{.rate}} for {{.name}}",
		testCandidate(), false)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out.Subject != "Priya - Senior Java Developer" {
		t.Errorf("Subject = %q", out.Subject)
	}
	if out.Body != "Rate $85.00 for Priya Sharma" {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestRenderBadTemplate(t *testing.T) {
	e := NewEngine()

	if _, err := e.Render("{{.name", "", testCandidate(), false); err == nil {
		t.Error("Render() with broken subject template should fail")
	}
	if err := e.Validate("{{.name", ""); err == nil {
		t.Error("Validate() with broken subject template should fail")
	}
	if err := e.Validate("{{.name}}", "{{.skills}}"); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
