/*
Package notify delivers workflow notifications: an in-app notice for the
recipient and an email through a pluggable Sender.

PURPOSE:
  The claim and EMR workflows describe what happened as a
  claim.Notification. The Dispatcher turns it into a stored notice and an
  email, resolving the staff CC address and the portal base URL at call
  time.

DELIVERY RULES:
  - The notice is stored first, then the email is sent.
  - A missing STAFF_EMAIL or BASE_URL is reported as a configuration
    error, but the email still goes out without the CC or link.
  - Every failure is returned to the caller, which logs it. Nothing here
    rolls back a workflow transition.

SEE ALSO:
  - sendgrid.go: SendGrid v3 sender
  - console.go: logrus sender for development
  - claim/notify.go: Notification type and Notifier contract
*/
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/config"
)

// =============================================================================
// TYPES
// =============================================================================

// Notice is an in-app notification.
type Notice struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type NoticeStore interface {
	SaveNotice(ctx context.Context, n *Notice) error
	ListNotices(ctx context.Context, uid string) ([]*Notice, error)
	MarkNoticeRead(ctx context.Context, uid, id string) error
}

// Address is a named email address.
type Address struct {
	Name  string
	Email string
}

// Email is a fully resolved outgoing message.
type Email struct {
	From        Address
	To          []string
	CC          []string
	Subject     string
	HTML        string
	Attachments []claim.NotificationAttachment
}

func (e Email) HasRecipients() bool {
	return len(e.To) > 0 || len(e.CC) > 0
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// =============================================================================
// DISPATCHER
// =============================================================================

type Dispatcher struct {
	notices NoticeStore
	sender  Sender
	senders map[claim.From]Address
	lookup  func(key string) (string, error)
	logger  *logrus.Logger
	clock   func() time.Time
}

var _ claim.Notifier = (*Dispatcher)(nil)

type Option func(*Dispatcher)

// WithLookup replaces the call-time configuration lookup. Used in tests.
func WithLookup(fn func(key string) (string, error)) Option {
	return func(d *Dispatcher) { d.lookup = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(d *Dispatcher) { d.clock = fn }
}

func NewDispatcher(notices NoticeStore, sender Sender, cfg config.EmailConfig, logger *logrus.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notices: notices,
		sender:  sender,
		senders: map[claim.From]Address{
			claim.FromDefault: {Name: cfg.DefaultName, Email: cfg.DefaultFrom},
			claim.FromRDC:     {Name: cfg.RDCName, Email: cfg.RDCFrom},
		},
		lookup: config.Lookup,
		logger: logger,
		clock:  time.Now,
	}
	if d.logger == nil {
		d.logger = config.DiscardLogger()
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify stores the notice and sends the email. All failures are joined.
func (d *Dispatcher) Notify(ctx context.Context, n claim.Notification) error {
	var errs []error

	link, err := d.resolveLink(n.Link)
	if err != nil {
		errs = append(errs, err)
	}

	if n.RecipientUID != "" && d.notices != nil {
		notice := &Notice{
			UID:       n.RecipientUID,
			Kind:      n.Kind,
			Title:     firstNonEmpty(n.Title, n.Subject),
			Body:      n.Body,
			Link:      n.Link,
			CreatedAt: d.clock().UTC(),
		}
		if err := d.notices.SaveNotice(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}

	email := Email{
		From:        d.from(n.From),
		To:          dedupe(n.To),
		CC:          dedupe(n.CC),
		Subject:     n.Subject,
		HTML:        n.Body,
		Attachments: n.Attachments,
	}
	if n.CCStaff {
		staff, err := d.lookup(config.KeyStaffEmail)
		if err != nil {
			errs = append(errs, err)
		} else {
			email.CC = dedupe(append(email.CC, splitAddresses(staff)...))
		}
	}
	if link != "" {
		email.HTML += `<p><a href="` + link + `">View in the research portal</a></p>`
	}

	if email.HasRecipients() && d.sender != nil {
		if err := d.sender.Send(ctx, email); err != nil {
			errs = append(errs, err)
		}
	}
	d.logger.WithFields(logrus.Fields{
		"kind":     n.Kind,
		"uid":      n.RecipientUID,
		"failures": len(errs),
	}).Debug("notification dispatched")
	return errors.Join(errs...)
}

func (d *Dispatcher) resolveLink(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	base, err := d.lookup(config.KeyBaseURL)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

func (d *Dispatcher) from(f claim.From) Address {
	if addr, ok := d.senders[f]; ok && addr.Email != "" {
		return addr
	}
	return d.senders[claim.FromDefault]
}

// =============================================================================
// HELPERS
// =============================================================================

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	var out []string
	for _, a := range addrs {
		key := strings.ToLower(strings.TrimSpace(a))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(a))
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
