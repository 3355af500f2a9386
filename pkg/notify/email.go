package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"github.com/kavindu/lmswatch/internal/store"
)

// Email sends digests over SMTP.
type Email struct {
	host     string
	port     int
	sender   string
	password string
	to       []string
}

// NewEmail creates an SMTP notifier.
func NewEmail(host string, port int, sender, password string, to []string) *Email {
	if port == 0 {
		port = 587
	}
	return &Email{
		host:     host,
		port:     port,
		sender:   sender,
		password: password,
		to:       to,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) SendActivities(_ context.Context, activities []store.Activity) error {
	subject := fmt.Sprintf("LMS Update: %d New Activities", len(activities))
	return e.send(subject, activityText(activities), activityHTML(activities))
}

func (e *Email) SendDeadlines(_ context.Context, deadlines []store.Deadline) error {
	subject := fmt.Sprintf("LMS Deadlines: %d Due Soon", len(deadlines))
	return e.send(subject, deadlineText(deadlines), deadlineHTML(deadlines))
}

func (e *Email) send(subject, text, html string) error {
	msg := email.NewEmail()
	msg.From = e.sender
	msg.To = e.to
	msg.Subject = subject
	msg.Text = []byte(text)
	msg.HTML = []byte(html)

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	auth := smtp.PlainAuth("", e.sender, e.password, e.host)
	if err := msg.Send(addr, auth); err != nil {
		return fmt.Errorf("send email via %s: %w", addr, err)
	}
	return nil
}

func activityText(activities []store.Activity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New LMS Activities (%d)\n\n", len(activities))
	for _, a := range activities {
		fmt.Fprintf(&b, "[%s] %s\n", a.Type, a.Title)
		fmt.Fprintf(&b, "   Course: %s (%s)\n", a.CourseName, a.Site)
		if a.DeadlineText != "" {
			fmt.Fprintf(&b, "   Deadline: %s\n", a.DeadlineText)
		}
		if a.URL != "" {
			fmt.Fprintf(&b, "   %s\n", a.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func activityHTML(activities []store.Activity) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>New LMS Activities (%d)</h2>", len(activities))
	for _, a := range activities {
		b.WriteString(`<div style="border-left:4px solid #667eea;padding:10px;margin:10px 0;background:#f9f9f9">`)
		fmt.Fprintf(&b, `<strong>%s</strong> <em>[%s]</em><br>`, htmlEscape(a.Title), htmlEscape(a.Type))
		fmt.Fprintf(&b, `%s (%s)<br>`, htmlEscape(a.CourseName), htmlEscape(a.Site))
		if a.DeadlineText != "" {
			fmt.Fprintf(&b, `Deadline: %s<br>`, htmlEscape(a.DeadlineText))
		}
		if a.URL != "" {
			fmt.Fprintf(&b, `<a href="%s">Open in LMS</a>`, a.URL)
		}
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func deadlineText(deadlines []store.Deadline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Upcoming Deadlines (%d)\n\n", len(deadlines))
	for _, d := range deadlines {
		fmt.Fprintf(&b, "%s - %s (%s, %s)\n",
			d.DeadlineDate.Format("Mon 2 Jan 2006"), d.Title, d.Site, d.Source)
		if d.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", d.Location)
		}
	}
	return b.String()
}

func deadlineHTML(deadlines []store.Deadline) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>Upcoming Deadlines (%d)</h2><ul>", len(deadlines))
	for _, d := range deadlines {
		fmt.Fprintf(&b, "<li><strong>%s</strong> - %s (%s)</li>",
			d.DeadlineDate.Format("Mon 2 Jan 2006"), htmlEscape(d.Title), htmlEscape(d.Site))
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

// SendTest delivers a short probe message so SMTP settings can be verified
// without waiting for a real scan.
func (e *Email) SendTest() error {
	body := fmt.Sprintf("lmswatch test notification sent at %s",
		time.Now().UTC().Format(time.RFC3339))
	return e.send("lmswatch test notification", body, "<p>"+body+"</p>")
}
