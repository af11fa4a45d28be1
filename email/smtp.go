package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	mail "github.com/go-mail/mail"
)

// SMTPConfig configures the SMTP delivery path.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// TLSMode is one of "auto", "starttls", "ssl", "none". Empty means auto.
	TLSMode            string
	InsecureSkipVerify bool

	// BaseURL is the public root the links point at, e.g.
	// https://accounts.example.com. Paths /verify-email and /reset-password
	// are appended with the token as a query parameter.
	BaseURL string
}

// SMTPSender implements Sender over SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, fmt.Errorf("%w: host, port and from are required", ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidInput)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidInput, err)
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) link(path, token string) string {
	u, _ := url.Parse(s.cfg.BaseURL)
	u.Path = path
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *SMTPSender) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}

	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipVerify}
	default:
		// "auto"/"starttls": STARTTLS is negotiated when the server offers it.
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func (s *SMTPSender) SendVerificationEmail(ctx context.Context, to, token string, ttl time.Duration) error {
	if to == "" || token == "" {
		return ErrInvalidInput
	}

	vars := verifyVars{Link: s.link("/verify-email", token), TTL: formatTTL(ttl)}
	htmlBody, textBody, err := render(verifyHTML, verifyText, vars)
	if err != nil {
		return err
	}
	return s.send(ctx, to, "Confirm your email address", htmlBody, textBody)
}

func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, to, token string, ttl time.Duration) error {
	if to == "" || token == "" {
		return ErrInvalidInput
	}

	vars := resetVars{Link: s.link("/reset-password", token), TTL: formatTTL(ttl)}
	htmlBody, textBody, err := render(resetHTML, resetText, vars)
	if err != nil {
		return err
	}
	return s.send(ctx, to, "Reset your password", htmlBody, textBody)
}

func (s *SMTPSender) SendWelcomeEmail(ctx context.Context, to, employeeID string) error {
	if to == "" {
		return ErrInvalidInput
	}

	htmlBody, textBody, err := render(welcomeHTML, welcomeText, welcomeVars{EmployeeID: employeeID})
	if err != nil {
		return err
	}
	return s.send(ctx, to, "Your account is ready", htmlBody, textBody)
}
