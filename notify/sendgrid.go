package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGrid sends email through the SendGrid v3 API.
type SendGrid struct {
	key        string
	subjPrefix string
}

var _ Sender = (*SendGrid)(nil)

func NewSendGrid(key, appName string) *SendGrid {
	s := &SendGrid{key: key}
	if appName != "" {
		s.subjPrefix = "[" + appName + "] "
	}
	return s
}

func (s *SendGrid) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(e))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (s *SendGrid) prepare(e Email) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + e.Subject
	for _, to := range e.To {
		p.AddTos(sgmail.NewEmail("", to))
	}
	for _, cc := range e.CC {
		p.AddCCs(sgmail.NewEmail("", cc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(e.From.Name, e.From.Email))
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/html", e.HTML))

	for _, a := range e.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return m
}
