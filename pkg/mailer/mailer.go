// Package mailer sends the engine's critical-notification emails using
// wneessen/go-mail over SMTP.
package mailer

import (
	"fmt"
	"log"
	"time"

	"github.com/wneessen/go-mail"
)

// Mailer is the interface NotificationService depends on.
type Mailer interface {
	// SendNotification sends a single notification's text to recipient,
	// tagged with the level it was classified at.
	SendNotification(recipient, level, subject, body string) error
}

// Config holds the SMTP connection details.
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

// SMTPMailer implements Mailer over a real SMTP connection.
type SMTPMailer struct {
	config   *Config
	testMode bool
}

// NewSMTPMailer creates a mailer that dials the configured SMTP server.
func NewSMTPMailer(config *Config) *SMTPMailer {
	return &SMTPMailer{config: config, testMode: false}
}

// NewTestSMTPMailer creates a mailer that builds messages but never dials
// out, used by integration tests that want to exercise message construction
// without a live server.
func NewTestSMTPMailer(config *Config) *SMTPMailer {
	return &SMTPMailer{config: config, testMode: true}
}

func (m *SMTPMailer) SendNotification(recipient, level, subject, body string) error {
	msg := mail.NewMsg()

	if err := msg.FromFormat(m.config.FromName, m.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set email from address: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("failed to set email recipient: %w", err)
	}
	msg.Subject(fmt.Sprintf("[%s] %s", level, subject))

	htmlBody := fmt.Sprintf(`
	<html>
		<body>
			<h2>%s</h2>
			<p>%s</p>
		</body>
	</html>`, subject, body)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	msg.AddAlternativeString(mail.TypeTextPlain, body)

	client, err := m.createSMTPClient()
	if err != nil {
		return err
	}
	if client == nil {
		log.Printf("notification email to %s [%s]: %s — %s", recipient, level, subject, body)
		return nil
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	return nil
}

func (m *SMTPMailer) createSMTPClient() (*mail.Client, error) {
	if m.testMode {
		return nil, nil
	}
	client, err := mail.NewClient(m.config.SMTPHost,
		mail.WithPort(m.config.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.config.SMTPUsername),
		mail.WithPassword(m.config.SMTPPassword),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client, nil
}

// ConsoleMailer logs notifications to stdout, used in local/dev hosts that
// have no SMTP credentials configured.
type ConsoleMailer struct{}

func NewConsoleMailer() *ConsoleMailer {
	return &ConsoleMailer{}
}

func (m *ConsoleMailer) SendNotification(recipient, level, subject, body string) error {
	fmt.Println("==============================================================")
	fmt.Printf("NOTIFICATION [%s] to %s\n", level, recipient)
	fmt.Printf("Subject: %s\n\n%s\n", subject, body)
	fmt.Println("==============================================================")
	return nil
}
