package generator

import (
	"fmt"
	"net/smtp"
)

// Mailer sends plain-text alert e-mails over SMTP. Grounded on the
// probe task's own smtplib/MIMEMultipart alerting; no SMTP client library
// appears anywhere in the retrieved examples, so this one piece stays on
// the standard library (justified in DESIGN.md).
type Mailer struct {
	Addr string // host:port
	From string
	To   []string
}

// Send delivers a single plain-text message.
func (m *Mailer) Send(subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.From, joinAddrs(m.To), subject, body)

	return smtp.SendMail(m.Addr, nil, m.From, m.To, []byte(msg))
}

func joinAddrs(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
