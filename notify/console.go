package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Console logs every email instead of sending it, and keeps a copy for
// inspection. Used in development and tests.
type Console struct {
	logger *logrus.Logger

	mu   sync.Mutex
	sent []Email
}

var _ Sender = (*Console)(nil)

func NewConsole(logger *logrus.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Send(_ context.Context, e Email) error {
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"from":        e.From.Email,
			"to":          strings.Join(e.To, ","),
			"cc":          strings.Join(e.CC, ","),
			"subject":     e.Subject,
			"attachments": len(e.Attachments),
		}).Info("email")
	}
	c.mu.Lock()
	c.sent = append(c.sent, e)
	c.mu.Unlock()
	return nil
}

// Sent returns every email sent so far.
func (c *Console) Sent() []Email {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Email(nil), c.sent...)
}
