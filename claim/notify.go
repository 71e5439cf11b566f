package claim

import (
	"context"
	"fmt"
	"html"
)

// =============================================================================
// NOTIFICATIONS - Best-effort side channel
// =============================================================================

// From selects the sending identity.
type From string

const (
	FromDefault From = "default"
	FromRDC     From = "rdc"
)

// NotificationAttachment is a file sent along with an email.
type NotificationAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Notification is one in-app notice plus email. Link is a path that the
// dispatcher joins with the portal base URL.
type Notification struct {
	Kind         string
	RecipientUID string
	To           []string
	CC           []string
	CCStaff      bool
	Subject      string
	Title        string
	Body         string // HTML
	Link         string
	From         From
	Attachments  []NotificationAttachment
}

// Notifier delivers notifications. A failure never undoes the state
// transition that triggered it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// =============================================================================
// CLAIM NOTIFICATIONS
// =============================================================================

func claimLink(c *Claim) string {
	return "/incentive-claims/" + c.ID
}

func submittedNotification(c *Claim) Notification {
	title := html.EscapeString(c.Title())
	return Notification{
		Kind:         "claim_submitted",
		RecipientUID: c.UID,
		To:           nonEmpty(c.UserEmail),
		CCStaff:      true,
		Subject:      fmt.Sprintf("Incentive claim %s submitted", c.ClaimID),
		Title:        "Claim submitted",
		Body: fmt.Sprintf("<p>Dear %s,</p><p>Your %s incentive claim <b>%s</b> (%s) has been submitted and is %s.</p>",
			html.EscapeString(c.UserName), c.Type, title, c.ClaimID, c.Status),
		Link: claimLink(c),
		From: FromRDC,
	}
}

func statusNotification(c *Claim, stage *ApprovalStage) Notification {
	body := fmt.Sprintf("<p>Dear %s,</p><p>Your incentive claim <b>%s</b> (%s) is now <b>%s</b>.</p>",
		html.EscapeString(c.UserName), html.EscapeString(c.Title()), c.ClaimID, c.Status)
	if stage != nil && stage.Comments != "" {
		body += fmt.Sprintf("<p>Comments from stage %d: %s</p>", stage.Stage, html.EscapeString(stage.Comments))
	}
	if c.Status == StatusAccepted && c.FinalApprovedAmount != nil {
		body += fmt.Sprintf("<p>Approved amount: ₹%s</p>", c.FinalApprovedAmount.StringFixed(2))
	}
	return Notification{
		Kind:         "claim_status",
		RecipientUID: c.UID,
		To:           nonEmpty(c.UserEmail),
		Subject:      fmt.Sprintf("Incentive claim %s: %s", c.ClaimID, c.Status),
		Title:        "Claim " + string(c.Status),
		Body:         body,
		Link:         claimLink(c),
		From:         FromRDC,
	}
}

func nonEmpty(addrs ...string) []string {
	var out []string
	for _, a := range addrs {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
