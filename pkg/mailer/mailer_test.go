package mailer

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"testing"
)

// captureOutput captures stdout for testing
func captureOutput(f func()) string {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)

	return buf.String()
}

// captureLog captures log output for testing
func captureLog(f func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	f()
	log.SetOutput(os.Stderr)
	return buf.String()
}

// MockMailer is a mock implementation of the Mailer interface for testing
type MockMailer struct {
	shouldFail bool
	sent       []string
}

func NewMockMailer(shouldFail bool) *MockMailer {
	return &MockMailer{shouldFail: shouldFail}
}

func (m *MockMailer) SendNotification(recipient, level, subject, body string) error {
	if m.shouldFail {
		return errors.New("mock mailer error")
	}
	m.sent = append(m.sent, recipient)
	return nil
}

// ValidatingMailer is a mock implementation that validates inputs
type ValidatingMailer struct {
	config *Config
}

func NewValidatingMailer(config *Config) *ValidatingMailer {
	return &ValidatingMailer{config: config}
}

func (m *ValidatingMailer) SendNotification(recipient, level, subject, body string) error {
	if recipient == "" {
		return errors.New("recipient is required")
	}
	if !strings.Contains(recipient, "@") {
		return errors.New("invalid email format")
	}
	if level == "" {
		return errors.New("level is required")
	}
	if subject == "" {
		return errors.New("subject is required")
	}
	return nil
}

func TestMockMailer_SendNotification(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mailer := NewMockMailer(false)
		err := mailer.SendNotification("ops@example.com", "critical", "Pool health critical", "average score 62")
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if len(mailer.sent) != 1 {
			t.Errorf("Expected 1 recorded send, got %d", len(mailer.sent))
		}
	})

	t.Run("failure", func(t *testing.T) {
		mailer := NewMockMailer(true)
		err := mailer.SendNotification("ops@example.com", "critical", "Pool health critical", "average score 62")
		if err == nil {
			t.Error("Expected error, got nil")
		}
		if err.Error() != "mock mailer error" {
			t.Errorf("Expected 'mock mailer error', got '%s'", err.Error())
		}
	})
}

func TestValidatingMailer_SendNotification(t *testing.T) {
	config := &Config{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "username",
		SMTPPassword: "password",
		FromEmail:    "noreply@example.com",
		FromName:     "Domain Fleet Engine",
	}

	mailer := NewValidatingMailer(config)

	testCases := []struct {
		name          string
		recipient     string
		level         string
		subject       string
		body          string
		expectedError string
	}{
		{
			name:          "valid input",
			recipient:     "ops@example.com",
			level:         "critical",
			subject:       "Pool health critical",
			body:          "average score 62",
			expectedError: "",
		},
		{
			name:          "empty recipient",
			recipient:     "",
			level:         "critical",
			subject:       "Pool health critical",
			body:          "average score 62",
			expectedError: "recipient is required",
		},
		{
			name:          "invalid email format",
			recipient:     "not-an-email",
			level:         "critical",
			subject:       "Pool health critical",
			body:          "average score 62",
			expectedError: "invalid email format",
		},
		{
			name:          "empty level",
			recipient:     "ops@example.com",
			level:         "",
			subject:       "Pool health critical",
			body:          "average score 62",
			expectedError: "level is required",
		},
		{
			name:          "empty subject",
			recipient:     "ops@example.com",
			level:         "critical",
			subject:       "",
			body:          "average score 62",
			expectedError: "subject is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := mailer.SendNotification(tc.recipient, tc.level, tc.subject, tc.body)

			if tc.expectedError == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Expected error '%s', got nil", tc.expectedError)
				} else if err.Error() != tc.expectedError {
					t.Errorf("Expected error '%s', got '%s'", tc.expectedError, err.Error())
				}
			}
		})
	}
}

func TestConsoleMailer_SendNotification(t *testing.T) {
	mailer := NewConsoleMailer()

	output := captureOutput(func() {
		err := mailer.SendNotification("ops@example.com", "critical", "Pool health critical", "average score 62")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	})

	expectedStrings := []string{
		"NOTIFICATION [critical] to ops@example.com",
		"Subject: Pool health critical",
		"average score 62",
	}

	for _, expected := range expectedStrings {
		if !strings.Contains(output, expected) {
			t.Errorf("Expected output to contain '%s', but it didn't. Output: %s", expected, output)
		}
	}
}

func TestSMTPMailer_SendNotification_TestMode(t *testing.T) {
	recipient := "ops@example.com"
	level := "critical"
	subject := "Pool health critical"
	body := "average score 62"

	config := &Config{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "username",
		SMTPPassword: "password",
		FromEmail:    "noreply@example.com",
		FromName:     "Domain Fleet Engine",
	}

	mailer := NewTestSMTPMailer(config)

	logOutput := captureLog(func() {
		err := mailer.SendNotification(recipient, level, subject, body)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	})

	expectedLogLines := []string{
		"notification email to " + recipient,
		"[" + level + "]",
		subject,
		body,
	}

	for _, expected := range expectedLogLines {
		if !strings.Contains(logOutput, expected) {
			t.Errorf("Expected log to contain '%s', but it didn't. Log: %s", expected, logOutput)
		}
	}
}

func TestSMTPMailer_WithEdgeCases(t *testing.T) {
	testCases := []struct {
		name        string
		recipient   string
		level       string
		subject     string
		body        string
		expectError bool
	}{
		{
			name:        "all fields empty",
			recipient:   "",
			level:       "",
			subject:     "",
			body:        "",
			expectError: true, // empty recipient should cause error
		},
		{
			name:        "special characters in subject",
			recipient:   "user@example.com",
			level:       "warning",
			subject:     "Test & Rotation <script>alert('xss')</script>",
			body:        "body text",
			expectError: false,
		},
		{
			name:        "very long body",
			recipient:   "user@example.com",
			level:       "info",
			subject:     "Test Completed",
			body:        strings.Repeat("x", 1000),
			expectError: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := &Config{
				SMTPHost:     "smtp.example.com",
				SMTPPort:     587,
				SMTPUsername: "username",
				SMTPPassword: "password",
				FromEmail:    "noreply@example.com",
				FromName:     "Domain Fleet Engine",
			}

			mailer := NewTestSMTPMailer(config)

			logOutput := captureLog(func() {
				err := mailer.SendNotification(tc.recipient, tc.level, tc.subject, tc.body)
				if tc.expectError && err == nil {
					t.Error("Expected error but got nil")
				}
				if !tc.expectError && err != nil {
					t.Errorf("Did not expect error but got: %v", err)
				}
			})

			if tc.recipient != "" && !tc.expectError {
				if !strings.Contains(logOutput, "notification email to "+tc.recipient) {
					t.Errorf("Expected log to contain recipient '%s', but it didn't. Log: %s", tc.recipient, logOutput)
				}
			}

			if tc.name == "special characters in subject" && !tc.expectError {
				if !strings.Contains(logOutput, tc.subject) {
					t.Errorf("Expected log to contain subject with special characters, but it didn't. Log: %s", logOutput)
				}
			}
		})
	}
}

func TestNewSMTPMailer(t *testing.T) {
	config := &Config{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "username",
		SMTPPassword: "password",
		FromEmail:    "noreply@example.com",
		FromName:     "Domain Fleet Engine",
	}

	mailer := NewSMTPMailer(config)

	if mailer.config != config {
		t.Errorf("Expected config to be %v, got %v", config, mailer.config)
	}
	if mailer.testMode {
		t.Error("Expected NewSMTPMailer to not be in test mode")
	}
}

func TestNewConsoleMailer(t *testing.T) {
	mailer := NewConsoleMailer()
	if mailer == nil {
		t.Errorf("Expected non-nil mailer")
	}
}

func TestMailerConfig(t *testing.T) {
	testCases := []struct {
		name     string
		config   *Config
		validate func(t *testing.T, config *Config)
	}{
		{
			name: "complete config",
			config: &Config{
				SMTPHost:     "smtp.example.com",
				SMTPPort:     587,
				SMTPUsername: "username",
				SMTPPassword: "password",
				FromEmail:    "noreply@example.com",
				FromName:     "Domain Fleet Engine",
			},
			validate: func(t *testing.T, config *Config) {
				if config.SMTPHost != "smtp.example.com" {
					t.Errorf("Expected SMTPHost to be 'smtp.example.com', got '%s'", config.SMTPHost)
				}
				if config.SMTPPort != 587 {
					t.Errorf("Expected SMTPPort to be 587, got %d", config.SMTPPort)
				}
			},
		},
		{
			name: "minimal config",
			config: &Config{
				SMTPHost:  "smtp.example.com",
				SMTPPort:  25,
				FromEmail: "noreply@example.com",
			},
			validate: func(t *testing.T, config *Config) {
				if config.SMTPUsername != "" {
					t.Errorf("Expected empty SMTPUsername, got '%s'", config.SMTPUsername)
				}
				if config.FromName != "" {
					t.Errorf("Expected empty FromName, got '%s'", config.FromName)
				}
			},
		},
		{
			name: "non-standard port",
			config: &Config{
				SMTPHost:  "smtp.example.com",
				SMTPPort:  2525,
				FromEmail: "noreply@example.com",
			},
			validate: func(t *testing.T, config *Config) {
				if config.SMTPPort != 2525 {
					t.Errorf("Expected SMTPPort to be 2525, got %d", config.SMTPPort)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mailer := NewSMTPMailer(tc.config)

			if mailer.config != tc.config {
				t.Errorf("Expected config to be %v, got %v", tc.config, mailer.config)
			}

			tc.validate(t, mailer.config)
		})
	}
}
