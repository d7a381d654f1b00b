package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"courier/config"
)

const sendEndpoint = "/v3/mail/send"

// SendGridNotifier delivers email through the SendGrid v3 API.
type SendGridNotifier struct {
	httpClient *resty.Client
	fromEmail  string
	fromName   string
}

var _ Notifier = (*SendGridNotifier)(nil)

// NewSendGridNotifier creates a SendGrid client from cfg.
func NewSendGridNotifier(cfg *config.Config) *SendGridNotifier {
	client := resty.New().
		SetBaseURL(cfg.SendGridBaseURL).
		SetAuthToken(cfg.SendGridAPIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", cfg.ServiceName).
		SetTimeout(cfg.NotifyTimeout)

	return &SendGridNotifier{
		httpClient: client,
		fromEmail:  cfg.SendGridFromEmail,
		fromName:   cfg.AppName,
	}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send posts the email. Any non-2xx response is an error.
func (n *SendGridNotifier) Send(ctx context.Context, email *Email) error {
	body := sgMail{
		Personalizations: []sgPersonalization{{
			To: []sgAddress{{Email: email.ToEmail, Name: email.ToName}},
		}},
		From:    sgAddress{Email: n.fromEmail, Name: n.fromName},
		Subject: email.Subject,
	}
	// SendGrid requires text/plain to precede text/html.
	if email.Text != "" {
		body.Content = append(body.Content, sgContent{Type: "text/plain", Value: email.Text})
	}
	if email.HTML != "" {
		body.Content = append(body.Content, sgContent{Type: "text/html", Value: email.HTML})
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Post(sendEndpoint)
	if err != nil {
		return fmt.Errorf("failed to call SendGrid: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("SendGrid API error (status %d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}
