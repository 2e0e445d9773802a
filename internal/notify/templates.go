package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
)

type message struct {
	subject string
	body    string
	plain   bool
}

var templates = map[Kind]message{
	KindRegistrationConfirmed: {
		subject: "Registration confirmed: {{.event_name}}",
		body:    `<p>Hi {{.name}},</p>
<p>You are registered for <strong>{{.event_name}}</strong>.</p>
<p>Your ticket: <code>{{.ticket_id}}</code></p>
{{if .start_date}}<p>Starts: {{.start_date}}{{if .venue}} at {{.venue}}{{end}}</p>{{end}}
{{if .amount}}<p>Amount due: {{.amount}}. Upload your payment proof to complete the registration.</p>{{end}}`,
	},
	KindTeamRegistered: {
		subject: "Team {{.team_name}} registered for {{.event_name}}",
		body:    `<p>Hi {{.name}},</p>
<p>Your team <strong>{{.team_name}}</strong> is registered for <strong>{{.event_name}}</strong>.</p>
<p>Your ticket: <code>{{.ticket_id}}</code></p>`,
	},
	KindTeamInvite: {
		subject: "{{.leader_name}} invited you to join {{.team_name}}",
		body:    `<p>{{.leader_name}} invited you to team <strong>{{.team_name}}</strong>
for <strong>{{.event_name}}</strong>.</p>
<p>Join with invite code <code>{{.invite_code}}</code>.</p>`,
	},
	KindEventPublished: {
		subject: "New event: {{.event_name}}",
		plain:   true,
		body:    `**{{.event_name}}** by {{.organizer_name}} is now open for registration.
{{if .description}}{{.description}}
{{end}}Registration closes {{.deadline}}.`,
	},
	KindOrganizerWelcome: {
		subject: "Your organizer account for {{.organizer_name}}",
		body:    `<p>An organizer account was created for <strong>{{.organizer_name}}</strong>.</p>
<p>Login email: {{.email}}<br>Password: <code>{{.password}}</code></p>
<p>Please keep these credentials safe.</p>`,
	},
	KindPasswordReset: {
		subject: "Password reset request {{.status}}",
		body:    `<p>Your password reset request was {{.status}}.</p>
{{if .password}}<p>New password: <code>{{.password}}</code></p>{{end}}
{{if .comment}}<p>Admin comment: {{.comment}}</p>{{end}}`,
	},
	KindPaymentReviewed: {
		subject: "Payment {{.status}} for {{.event_name}}",
		body:    `<p>Hi {{.name}},</p>
<p>Your payment for <strong>{{.event_name}}</strong> was {{.status}}.</p>
{{if .ticket_id}}<p>Ticket: <code>{{.ticket_id}}</code></p>{{end}}`,
	},
}

// Render returns the subject and body for n. Plain bodies (Discord) are markdown and not HTML-escaped.
func Render(n Notification) (subject, body string, err error) {
	m, ok := templates[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for kind %q", n.Kind)
	}
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	if subject, err = execText(m.subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", n.Kind, err)
	}
	if m.plain {
		body, err = execText(m.body, data)
	} else {
		body, err = execHTML(m.body, data)
	}
	if err != nil {
		return "", "", fmt.Errorf("render %s: %w", n.Kind, err)
	}
	return subject, strings.TrimSpace(body), nil
}

func execText(src string, data map[string]string) (string, error) {
	t, err := texttemplate.New("").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", err
	}
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func execHTML(src string, data map[string]string) (string, error) {
	t, err := template.New("").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", err
	}
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
