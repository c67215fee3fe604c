// Package mail composes certificate emails and delivers them through the
// Gmail API.
package mail

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/gomail.v2"

	"certsend/internal/pkg/errors"
)

// Message is one outgoing email with a single attached certificate.
type Message struct {
	From           string
	To             string
	Subject        string
	Body           string
	AttachmentPath string
}

// Validate checks the fields every message needs.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.From) == "":
		return errors.ValidationField("from", "sender address is required")
	case strings.TrimSpace(m.To) == "":
		return errors.ValidationField("to", "recipient address is required")
	case m.AttachmentPath == "":
		return errors.ValidationField("attachment", "attachment path is required")
	}
	return nil
}

// Compose serializes msg as a multipart RFC 5322 message: a text/plain body
// followed by the attachment, named after its base file name.
func Compose(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(msg.AttachmentPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("attachment", msg.AttachmentPath)
		}
		return nil, errors.Wrap(err, "mail.compose", "cannot read attachment")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	m.Attach(msg.AttachmentPath,
		gomail.Rename(filepath.Base(msg.AttachmentPath)),
		gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
	)

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "mail.compose", "cannot assemble message")
	}
	return buf.Bytes(), nil
}
