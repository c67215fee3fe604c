package mail

import (
	"context"
	"encoding/base64"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"certsend/internal/pkg/errors"
)

// gmailUser is the special user ID for the authenticated account.
const gmailUser = "me"

// GmailClient sends messages as the authenticated Gmail account.
type GmailClient struct {
	srv *gmail.Service
}

// NewGmailClient builds a client on top of an authorized HTTP client.
func NewGmailClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*GmailClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "mail.gmail", "cannot create Gmail service")
	}
	return &GmailClient{srv: srv}, nil
}

// Send composes msg and submits it, returning the Gmail message ID.
func (c *GmailClient) Send(ctx context.Context, msg Message) (string, error) {
	raw, err := Compose(msg)
	if err != nil {
		return "", err
	}

	sent, err := c.srv.Users.Messages.
		Send(gmailUser, &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}).
		Context(ctx).
		Do()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, "mail.send", "gmail rejected the message").
			WithField("to", msg.To)
	}
	return sent.Id, nil
}
