package services

import (
	"context"
	"fmt"
	"html"

	"subscription-sync/internal/models"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// BrevoMailer sends subscription status messages through Brevo.
type BrevoMailer struct {
	client    *brevo.APIClient
	fromEmail string
	fromName  string
}

// NewBrevoMailer creates a Brevo mailer
func NewBrevoMailer(apiKey, fromEmail, fromName string) *BrevoMailer {
	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)

	return &BrevoMailer{
		client:    brevo.NewAPIClient(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// SendStatusMessage implements StatusMailer.
func (m *BrevoMailer) SendStatusMessage(ctx context.Context, account models.Account, state models.SubscriptionState) error {
	email := statusEmail(m.fromName, m.fromEmail, account, state)

	_, resp, err := m.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send status email: %w", err)
	}
	if resp != nil && resp.StatusCode >= 300 {
		return fmt.Errorf("brevo API error: status %d", resp.StatusCode)
	}
	return nil
}

func statusEmail(fromName, fromEmail string, account models.Account, state models.SubscriptionState) brevo.SendSmtpEmail {
	subject := "Your subscription has expired"
	if state.IsSubscribed {
		subject = "Your subscription is active"
	}

	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<title>%s</title>
		</head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333; margin-bottom: 20px;">%s</h1>
				<p style="color: #666; font-size: 16px;">%s</p>
			</div>
		</body>
		</html>
	`, subject, subject, html.EscapeString(state.StatusMessage))

	return brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  fromName,
			Email: fromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: account.Email},
		},
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: state.StatusMessage,
	}
}
