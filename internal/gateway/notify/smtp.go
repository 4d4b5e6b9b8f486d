package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPNotifier sends mail through a configured relay.
type SMTPNotifier struct {
	Addr     string // host:port
	From     string
	Username string
	Password string

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(addr, from, username, password string) (*SMTPNotifier, error) {
	if addr == "" || from == "" {
		return nil, fmt.Errorf("notify: smtp address and from are required")
	}
	return &SMTPNotifier{
		Addr:     addr,
		From:     from,
		Username: username,
		Password: password,
		send:     smtp.SendMail,
	}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.Username != "" {
		host, _, _ := strings.Cut(n.Addr, ":")
		auth = smtp.PlainAuth("", n.Username, n.Password, host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := n.send(n.Addr, auth, n.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("notify: smtp send to %s failed: %w", msg.To, err)
	}
	return nil
}
