package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Message is the content of a notification email.
type Message struct {
	Title      string
	Body       string
	ActionURL  string
	ActionText string
	ImageURL   string
	// Footer is shown below the content, e.g. why the user got the email.
	Footer string
}

var layout = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:Arial,sans-serif;color:#1f2933;max-width:600px;margin:0 auto;padding:24px">
<h1 style="font-size:20px">{{.Title}}</h1>
{{if .ImageURL}}<img src="{{.ImageURL}}" alt="" style="max-width:100%">{{end}}
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .ActionURL}}<p><a href="{{.ActionURL}}" style="background:#2563eb;color:#fff;padding:10px 16px;border-radius:4px;text-decoration:none">{{.ActionText}}</a></p>{{end}}
{{if .Footer}}<p style="font-size:12px;color:#7b8794">{{.Footer}}</p>{{end}}
</body>
</html>
`))

// Compose renders m into an HTML body and a plain text alternative.
func Compose(m Message) (html, text string, err error) {
	if m.ActionURL != "" && m.ActionText == "" {
		m.ActionText = "Open"
	}

	var buf bytes.Buffer
	err = layout.Execute(&buf, struct {
		Message
		Paragraphs []string
	}{m, paragraphs(m.Body)})
	if err != nil {
		return "", "", fmt.Errorf("render email layout: %w", err)
	}

	var t strings.Builder
	t.WriteString(m.Title)
	t.WriteString("\n\n")
	t.WriteString(m.Body)
	if m.ActionURL != "" {
		fmt.Fprintf(&t, "\n\n%s: %s", m.ActionText, m.ActionURL)
	}
	if m.Footer != "" {
		t.WriteString("\n\n")
		t.WriteString(m.Footer)
	}
	return buf.String(), t.String(), nil
}

func paragraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
