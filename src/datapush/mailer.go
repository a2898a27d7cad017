package datapush

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"RosterDashboard/src/config"
)

var ErrNoRecipients = errors.New("no mail recipients configured")

// Mailer 通过 SMTP (隐式 TLS) 发送报表
type Mailer struct {
	server   string // host:port
	username string
	password string
	to       []string
	subject  string

	// send 为空时使用 SendWithTLS
	send func(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error
}

// NewMailer 服务器地址没有端口时默认 465
func NewMailer(c config.SendEmailConfig) *Mailer {
	addr := c.Server
	if addr != "" && !strings.Contains(addr, ":") {
		addr += ":465"
	}
	return &Mailer{
		server:   addr,
		username: c.Username,
		password: c.Password,
		to:       c.To,
		subject:  c.Subject,
	}
}

// Enabled 配置了服务器和收件人
func (m *Mailer) Enabled() bool {
	return m != nil && m.server != "" && len(m.to) > 0
}

// Compose 组装邮件，附件按路径添加
func (m *Mailer) Compose(r *Report, attachments ...string) (*email.Email, error) {
	if len(m.to) == 0 {
		return nil, ErrNoRecipients
	}
	e := email.NewEmail()
	e.From = fmt.Sprintf("Roster Dashboard <%s>", m.username)
	e.To = m.to
	e.Subject = m.subject
	if e.Subject == "" {
		e.Subject = r.Title()
	}
	e.Text = []byte(r.Markdown())

	for _, path := range attachments {
		if _, err := e.AttachFile(path); err != nil {
			return nil, fmt.Errorf("attach %s: %w", path, err)
		}
	}
	return e, nil
}

// Send 组装并发送
func (m *Mailer) Send(r *Report, attachments ...string) error {
	e, err := m.Compose(r, attachments...)
	if err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(m.server)
	if err != nil {
		return fmt.Errorf("parse smtp address %q: %w", m.server, err)
	}

	send := m.send
	if send == nil {
		send = func(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
			return e.SendWithTLS(addr, auth, tlsConfig)
		}
	}
	if err := send(e, m.server, smtp.PlainAuth("", m.username, m.password, host), &tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("send mail via %s: %w", m.server, err)
	}
	return nil
}
