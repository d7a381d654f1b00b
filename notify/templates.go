package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"courier/database"
	"courier/models"
)

// PreviewLength is how many characters of a message go into its notification.
const PreviewLength = 100

const layoutHTML = `{{define "layout"}}<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      {{template "body" .}}
      <p>
        <a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 5px;">{{.Action}}</a>
      </p>
      <hr style="border: none; border-top: 1px solid #ddd; margin: 30px 0;">
      <p style="color: #888; font-size: 12px;">{{.Footer}}</p>
    </div>
  </body>
</html>{{end}}`

var (
	newMessageTmpl = mustTemplate(`{{define "body"}}
      <h2 style="color: #4CAF50;">New Message Received!</h2>
      <p>Hi {{.Recipient}},</p>
      <p>You have received a new message from <strong>{{.Sender}}</strong>:</p>
      <div style="background-color: #f5f5f5; padding: 15px; border-left: 4px solid #4CAF50; margin: 20px 0;">
        <p style="margin: 0; font-style: italic;">"{{.Preview}}"</p>
      </div>{{end}}`)

	welcomeTmpl = mustTemplate(`{{define "body"}}
      <h2 style="color: #4CAF50;">Welcome to {{.AppName}}!</h2>
      <p>Hi {{.Recipient}},</p>
      <p>Thank you for registering! Your account has been successfully created.</p>
      <p>You can now:</p>
      <ul>
        <li>Send and receive messages</li>
        <li>Manage your conversations</li>
      </ul>{{end}}`)

	digestTmpl = mustTemplate(`{{define "body"}}
      <h2 style="color: #4CAF50;">Unread Messages Summary</h2>
      <p>Hi {{.Recipient}},</p>
      <p>You have <strong>{{.Count}}</strong> unread {{.Noun}} from:</p>
      <p style="font-size: 16px; color: #555;">{{.Senders}}</p>{{end}}`)
)

func mustTemplate(body string) *template.Template {
	t := template.Must(template.New("email").Parse(layoutHTML))
	return template.Must(t.Parse(body))
}

type emailData struct {
	AppName   string
	Recipient string
	Sender    string
	Preview   string
	Count     int
	Noun      string
	Senders   string
	Link      string
	Action    string
	Footer    string
}

// Renderer turns domain events into emails.
type Renderer struct {
	appName string
	appURL  string
}

func NewRenderer(appName, appURL string) *Renderer {
	return &Renderer{appName: appName, appURL: strings.TrimRight(appURL, "/")}
}

// NewMessage renders the notification sent to a message's receiver.
func (r *Renderer) NewMessage(sender, receiver *models.User, content string) (*Email, error) {
	data := emailData{
		AppName:   r.appName,
		Recipient: receiver.Username,
		Sender:    sender.Username,
		Preview:   Preview(content),
		Link:      r.appURL + "/messages",
		Action:    "View Message",
		Footer:    fmt.Sprintf("This is an automated notification from %s. Please do not reply to this email.", r.appName),
	}
	return r.render(newMessageTmpl, &Email{
		Kind:    KindNewMessage,
		ToEmail: receiver.Email,
		ToName:  receiver.Username,
		Subject: "New message from " + sender.Username,
		Text:    fmt.Sprintf("Hi %s,\n\n%s sent you a message:\n\n%q\n\n%s\n", receiver.Username, sender.Username, data.Preview, data.Link),
	}, data)
}

// Welcome renders the email sent after registration.
func (r *Renderer) Welcome(user *models.User) (*Email, error) {
	data := emailData{
		AppName:   r.appName,
		Recipient: user.Username,
		Link:      r.appURL + "/login",
		Action:    "Start Messaging",
		Footer:    "If you didn't create this account, please ignore this email.",
	}
	return r.render(welcomeTmpl, &Email{
		Kind:    KindWelcome,
		ToEmail: user.Email,
		ToName:  user.Username,
		Subject: fmt.Sprintf("Welcome to %s!", r.appName),
		Text:    fmt.Sprintf("Hi %s,\n\nYour %s account has been created.\n\n%s\n", user.Username, r.appName, data.Link),
	}, data)
}

// Digest renders the periodic unread summary.
func (r *Renderer) Digest(d database.UnreadDigest) (*Email, error) {
	noun := "message"
	if d.UnreadCount > 1 {
		noun = "messages"
	}
	data := emailData{
		AppName:   r.appName,
		Recipient: d.RecipientUsername,
		Count:     d.UnreadCount,
		Noun:      noun,
		Senders:   SenderList(d.SenderNames),
		Link:      r.appURL + "/messages",
		Action:    "Read Your Messages",
		Footer:    fmt.Sprintf("This is an automated daily digest from %s.", r.appName),
	}
	return r.render(digestTmpl, &Email{
		Kind:    KindDigest,
		ToEmail: d.RecipientEmail,
		ToName:  d.RecipientUsername,
		Subject: fmt.Sprintf("You have %d unread %s", d.UnreadCount, noun),
		Text:    fmt.Sprintf("Hi %s,\n\nYou have %d unread %s from %s.\n\n%s\n", d.RecipientUsername, d.UnreadCount, noun, data.Senders, data.Link),
	}, data)
}

func (r *Renderer) render(t *template.Template, email *Email, data emailData) (*Email, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return nil, fmt.Errorf("render %s email: %w", email.Kind, err)
	}
	email.HTML = buf.String()
	return email, nil
}

// Preview shortens content to PreviewLength characters.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength]) + "..."
}

// SenderList names the first three senders and counts the rest.
func SenderList(names []string) string {
	if len(names) <= 3 {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d others", strings.Join(names[:3], ", "), len(names)-3)
}
