package gmailclient

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

// sendInterval spaces out sends to stay under Gmail's per-user rate limit
const sendInterval = 3 * time.Second

// SendEmail sends a plain-text email, waiting out sendInterval since the last one
func (c *Client) SendEmail(to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := sendInterval - time.Since(c.lastSent); !c.lastSent.IsZero() && wait > 0 {
		time.Sleep(wait)
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildMessage(c.sender, to, subject, body)))
	_, err := c.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Do()
	c.lastSent = time.Now()
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	return nil
}

// buildMessage renders an RFC 2822 message. Header values are stripped of
// line breaks and the subject is encoded when it is not plain ASCII.
func buildMessage(from, to, subject, body string) string {
	clean := strings.NewReplacer("\r", "", "\n", " ")

	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", clean.Replace(from))
	}
	fmt.Fprintf(&b, "To: %s\r\n", clean.Replace(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", clean.Replace(subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}
