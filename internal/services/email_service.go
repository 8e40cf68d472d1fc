package services

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendVerificationEmail(email, name, token string) error
	SendPasswordResetEmail(email, name, token string) error
	SendApprovalEmail(email, name string) error
	// SendSecurityAlert covers security-relevant state changes: 2FA
	// enabled/disabled, passkey added/removed, password changed.
	SendSecurityAlert(email, name, event string) error
}

type emailService struct {
	dialer  *gomail.Dialer
	from    string
	baseURL string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, baseURL string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer:  dialer,
		from:    fromEmail,
		baseURL: baseURL,
	}
}

func (s *emailService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %q email: %w", subject, err)
	}
	return nil
}

func (s *emailService) SendVerificationEmail(email, name, token string) error {
	body := fmt.Sprintf(`
		<h2>Welcome to CertiChain, %s!</h2>
		<p>Please confirm your email address to continue your registration.</p>
		<p><a href="%s/auth/verify-email?token=%s">Verify my email</a></p>
		<p>The link is valid for 24 hours. After verification your account
		awaits review by your institution's administrator.</p>
	`, name, s.baseURL, token)
	return s.send(email, "Verify your CertiChain email", body)
}

func (s *emailService) SendPasswordResetEmail(email, name, token string) error {
	body := fmt.Sprintf(`
		<h3>Password reset requested</h3>
		<p>Hi %s, we received a request to reset the password for your account.</p>
		<p>Use the following token to reset your password: <strong>%s</strong></p>
		<p>The token expires in 1 hour. If you did not request this change, you can ignore this email.</p>
	`, name, token)
	return s.send(email, "CertiChain password reset", body)
}

func (s *emailService) SendApprovalEmail(email, name string) error {
	body := fmt.Sprintf(`
		<h2>Your CertiChain account is active</h2>
		<p>Hi %s, your institution has approved your account. You can now log in
		and manage your academic certificates.</p>
	`, name)
	return s.send(email, "CertiChain account approved", body)
}

func (s *emailService) SendSecurityAlert(email, name, event string) error {
	body := fmt.Sprintf(`
		<h3>Security notice</h3>
		<p>Hi %s, a security-relevant change just happened on your account: <strong>%s</strong>.</p>
		<p>If this was not you, reset your password immediately and contact support.</p>
	`, name, event)
	return s.send(email, "CertiChain security notice", body)
}
