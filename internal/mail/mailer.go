// Package mail defines the outbound mail interface consumed by the auth flow.
package mail

import (
	"fmt"
	"log"
	"net/smtp"
)

// Mailer delivers transactional mail. The core never depends on a concrete
// delivery mechanism.
type Mailer interface {
	SendVerificationCode(to, code string) error
	SendPasswordReset(to, token string) error
}

// LogMailer logs messages instead of sending them, for development.
type LogMailer struct{}

// SendVerificationCode logs the verification code.
func (LogMailer) SendVerificationCode(to, code string) error {
	log.Printf("[MAIL] verification code for %s: %s", to, code)
	return nil
}

// SendPasswordReset logs the reset token.
func (LogMailer) SendPasswordReset(to, token string) error {
	log.Printf("[MAIL] password reset token for %s: %s", to, token)
	return nil
}

// SMTPMailer sends mail over SMTP with PLAIN auth.
type SMTPMailer struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := []byte("From: " + m.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body + "\r\n")
	auth := smtp.PlainAuth("", m.User, m.Pass, m.Host)
	if err := smtp.SendMail(m.Host+":"+m.Port, auth, m.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// SendVerificationCode emails the email-verification code.
func (m *SMTPMailer) SendVerificationCode(to, code string) error {
	return m.send(to, "Verify your CloudShare email",
		"Your verification code is: "+code+"\r\nIt expires in 24 hours.")
}

// SendPasswordReset emails the password reset token.
func (m *SMTPMailer) SendPasswordReset(to, token string) error {
	return m.send(to, "Reset your CloudShare password",
		"Your password reset code is: "+token+"\r\nIt expires in 30 minutes.")
}
