package email

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"
)

type Service interface {
	SendWelcome(ctx context.Context, to, name, qrID string) error
}

// Config holds SMTP settings.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer  dialer
	from    string
	baseURL string
}

// NewService returns an SMTP-backed service, or a no-op one when mail is disabled.
func NewService(cfg Config) Service {
	if !cfg.Enabled {
		return nopService{}
	}
	return &smtpService{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

var welcomeTmpl = template.Must(template.New("welcome").Parse(
	`<p>Hello {{.Name}},</p>
<p>Your record is now linked to QR code <b>{{.QRID}}</b>.</p>
<p>Sign in at <a href="{{.Link}}">{{.Link}}</a>.</p>`))

func (s *smtpService) SendWelcome(ctx context.Context, to, name, qrID string) error {
	if to == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body strings.Builder
	err := welcomeTmpl.Execute(&body, map[string]string{
		"Name": name,
		"QRID": qrID,
		"Link": fmt.Sprintf("%s/login/%s", s.baseURL, qrID),
	})
	if err != nil {
		return fmt.Errorf("failed to render welcome mail: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your clinic record is ready")
	m.SetBody("text/html", body.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send welcome mail: %w", err)
	}
	return nil
}

type nopService struct{}

func (nopService) SendWelcome(context.Context, string, string, string) error { return nil }
