package mailer

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// Message is one notification email
type Message struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	ToName    string    `json:"toName,omitempty"`
	Subject   string    `json:"subject"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	EventType string    `json:"eventType"`
	CreatedAt time.Time `json:"createdAt"`
}

// Dispatcher delivers or enqueues a notification email
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

const htmlLayout = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2>{{.Title}}</h2>
  {{if .ToName}}<p>Hello {{.ToName}},</p>{{end}}
  <p>{{.Body}}</p>
  {{if .Link}}<p><a href="{{.Link}}">View details</a></p>{{end}}
</body>
</html>`

const textLayout = `{{.Title}}
{{if .ToName}}
Hello {{.ToName}},
{{end}}
{{.Body}}
{{if .Link}}
View details: {{.Link}}
{{end}}`

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(htmlLayout))
	textTemplate = texttemplate.Must(texttemplate.New("text").Parse(textLayout))
)

// Render produces the HTML and plain text bodies of the message
func Render(msg Message) (string, string, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := htmlTemplate.Execute(&htmlBuf, msg); err != nil {
		return "", "", fmt.Errorf("failed to render html body: %w", err)
	}
	if err := textTemplate.Execute(&textBuf, msg); err != nil {
		return "", "", fmt.Errorf("failed to render text body: %w", err)
	}
	return htmlBuf.String(), strings.TrimSpace(textBuf.String()), nil
}
