package mail

import (
	"os"
	"strings"
	"text/template"

	"certsend/internal/pkg/errors"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "Your Certificate of Participation"

// DefaultBody is the stock message; {{.Name}} is the participant's name.
const DefaultBody = `
Congratulations on Successfully Participating in the Git & GitHub Workshop!

Dear {{.Name}},

Congratulations! 🎊
You have successfully participated in the Git & GitHub Workshop held on 13th September 2025.

We truly appreciate your enthusiasm and active involvement throughout the session. As a token of your successful participation, we are pleased to award you with a Certificate of Participation. 🏅

This certificate recognizes your effort in learning the fundamentals of Git & GitHub, tools that are essential for version control, collaboration, and professional development in today’s tech-driven world.

Keep up the great spirit of learning and collaboration – this is just the beginning of your coding journey! 🚀

Best wishes,
Team CSI
`

// BodyData is what a body template can reference.
type BodyData struct {
	Name  string
	Email string
}

// BodyTemplate personalizes the email body per participant.
type BodyTemplate struct {
	tmpl *template.Template
}

// ParseBody compiles text as a body template. Unknown fields are an error at
// render time, not silently empty.
func ParseBody(text string) (*BodyTemplate, error) {
	tmpl, err := template.New("body").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "mail.body", "invalid body template")
	}
	return &BodyTemplate{tmpl: tmpl}, nil
}

// LoadBody reads a body template from path, or returns the default body when
// path is empty.
func LoadBody(path string) (*BodyTemplate, error) {
	if strings.TrimSpace(path) == "" {
		return ParseBody(DefaultBody)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("body template", path)
		}
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "mail.body", "cannot read body template")
	}
	return ParseBody(string(b))
}

// Render executes the template for one participant.
func (b *BodyTemplate) Render(data BodyData) (string, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeValidation, "mail.body", "cannot render body")
	}
	return sb.String(), nil
}
