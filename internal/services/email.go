package services

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

var ErrSMTPNotConfigured = errors.New("SMTP credentials not fully configured")

// EmailSender delivers a plain text email
type EmailSender interface {
	SendEmail(to []string, subject, body string) error
}

// SMTPConfig is the outgoing mail server
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type EmailService struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailService(cfg SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg, sendMail: smtp.SendMail}
}

// Configured reports whether enough settings are present to send mail
func (s *EmailService) Configured() bool {
	return s.cfg.Host != "" && s.cfg.Port != "" && s.cfg.User != "" && s.cfg.Password != ""
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if !s.Configured() {
		return ErrSMTPNotConfigured
	}
	if len(to) == 0 {
		return errors.New("no recipients")
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)

	message := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", from, strings.Join(to, ", "), subject, body))

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	if err := s.sendMail(addr, auth, from, to, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
