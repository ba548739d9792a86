package drift

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailChannel delivers drift verdicts over SMTP.
type EmailChannel struct {
	host     string
	port     int
	from     string
	to       []string
	username string
	password string

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string
}

// NewEmailChannel creates an SMTP alert channel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{
		host:     cfg.Host,
		port:     cfg.Port,
		from:     cfg.From,
		to:       cfg.To,
		username: cfg.Username,
		password: cfg.Password,
		send:     smtp.SendMail,
	}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, v Verdict) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("Drift check: %s healthy", v.Model)
	if v.HasDrifted {
		subject = fmt.Sprintf("Model drift detected: %s", v.Model)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", e.from)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n", subject)
	body.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	body.WriteString(v.Summary())
	body.WriteString("\r\n")

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	if err := e.send(addr, auth, e.from, e.to, []byte(body.String())); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
