// Package email delivers notification digests over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/reelroom/reelroom/internal/logger"
	"github.com/reelroom/reelroom/internal/store"
)

// Config holds SMTP configuration.
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	FromName     string
}

// Service sends digest emails.
type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// DigestData feeds the digest template.
type DigestData struct {
	ProjectName string
	Items       []DigestItem
	Year        int
}

type DigestItem struct {
	Author   string
	Body     string
	Timecode string
	At       time.Time
}

// SendDigest renders and sends one batch of notifications to a recipient.
func (s *Service) SendDigest(to, projectName string, batch []store.Notification) error {
	data := DigestData{
		ProjectName: projectName,
		Items:       make([]DigestItem, 0, len(batch)),
		Year:        time.Now().Year(),
	}
	for _, n := range batch {
		item := DigestItem{Author: n.Author, Body: n.Body, At: n.CreatedAt}
		if n.Timecode != nil {
			item.Timecode = formatTimecode(*n.Timecode)
		}
		data.Items = append(data.Items, item)
	}

	body, err := s.renderTemplate(digestTemplate, data)
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}

	subject := fmt.Sprintf("%d new updates on %s", len(batch), projectName)
	return s.Send(to, subject, body)
}

// Send sends an email with the given subject and HTML body.
func (s *Service) Send(to, subject, htmlBody string) error {
	log := logger.Default()

	from := fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s", from, to, subject, htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" && s.cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.FromAddress, []string{to}, []byte(msg)); err != nil {
		log.Error("email send failed", "to", to, "subject", subject, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info("email sent", "to", to, "subject", subject)
	return nil
}

func (s *Service) renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// formatTimecode renders a video position in seconds as M:SS or H:MM:SS.
func formatTimecode(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

const digestTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>New activity on {{.ProjectName}}</h2>
  <ul style="list-style: none; padding: 0;">
    {{range .Items}}
    <li style="margin-bottom: 16px; border-left: 3px solid #ddd; padding-left: 12px;">
      <strong>{{.Author}}</strong>
      {{if .Timecode}}<span style="color: #888;">at {{.Timecode}}</span>{{end}}
      <p style="margin: 4px 0;">{{.Body}}</p>
    </li>
    {{end}}
  </ul>
  <p style="color: #aaa; font-size: 12px;">&copy; {{.Year}} reelroom</p>
</body>
</html>`
