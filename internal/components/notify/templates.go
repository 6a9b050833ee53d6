package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
)

// Rendered is a message ready for delivery. Text is the Markdown source and
// HTML its rendering.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type kindTemplate struct {
	subject *template.Template
	body    *template.Template
}

// markdownSpecial are the characters that can start inline or block
// Markdown constructs.
const markdownSpecial = "\\`*_{}[]()<>#+-.!|~&"

// escapeMarkdown makes s render as literal text inside a Markdown body.
// Line breaks are folded to spaces so a value cannot open a new block.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n':
			b.WriteByte(' ')
		case r < 0x80 && strings.ContainsRune(markdownSpecial, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var bodyFuncs = template.FuncMap{"md": escapeMarkdown}

// mustKind parses a subject and a Markdown body. Bodies pass every value
// that did not come from the service itself through md.
func mustKind(name, subject, body string) kindTemplate {
	return kindTemplate{
		subject: template.Must(template.New(name + ".subject").Option("missingkey=error").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Funcs(bodyFuncs).Option("missingkey=error").Parse(body)),
	}
}

var templates = map[Kind]kindTemplate{
	KindTeamInvitation: mustKind(string(KindTeamInvitation),
		`{{.captain_name}} invited you to join {{.team_name}}`,
		`Hello,

**{{md .captain_name}}** invited you to join the team **{{md .team_name}}** for *{{md .event_title}}*.

To accept, open the link below, sign in with this email address and confirm it with a one-time code:

[Verify your invitation]({{.verify_url}})

The invitation is valid until {{.expires_at}}.
`),
	KindVerificationCode: mustKind(string(KindVerificationCode),
		`Your verification code for {{.team_name}}`,
		`Your verification code for **{{md .team_name}}** ({{md .event_title}}) is:

    {{.code}}

The code expires at {{.expires_at}}. If you did not request it, ignore this email.
`),
	KindTeamProgress: mustKind(string(KindTeamProgress),
		`{{.member_email}} joined {{.team_name}}`,
		`**{{md .member_email}}** verified their invitation to **{{md .team_name}}**.

{{.verified}} of {{.total}} members are now verified.
`),
	KindTeamConfirmed: mustKind(string(KindTeamConfirmed),
		`{{.team_name}} is confirmed`,
		`All {{.total}} members of **{{md .team_name}}** have verified. The team registration for *{{md .event_title}}* is confirmed.
`),
}

var markdown = goldmark.New()

// Render expands the template for msg.Kind.
func Render(msg Message) (Rendered, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return Rendered{}, fmt.Errorf("no template for notification kind %q", msg.Kind)
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, msg.Data); err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", msg.Kind, err)
	}
	if err := tpl.body.Execute(&body, msg.Data); err != nil {
		return Rendered{}, fmt.Errorf("render %s body: %w", msg.Kind, err)
	}

	var html bytes.Buffer
	if err := markdown.Convert(body.Bytes(), &html); err != nil {
		return Rendered{}, fmt.Errorf("render %s html: %w", msg.Kind, err)
	}

	return Rendered{
		Subject: strings.TrimSpace(subject.String()),
		Text:    body.String(),
		HTML:    html.String(),
	}, nil
}
