package emr

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/config"
)

var tracer = otel.Tracer("github.com/rdc/incentive-engine/emr")

// Deps are the service's collaborators. Store and Counter are required.
type Deps struct {
	Store    Store
	Counter  claim.Counter
	Profiles claim.ProfileStore
	Activity claim.ActivityLog
	Notifier claim.Notifier
	Logger   *logrus.Logger
	Clock    func() time.Time
}

type Service struct {
	store    Store
	counter  claim.Counter
	profiles claim.ProfileStore
	activity claim.ActivityLog
	notifier claim.Notifier
	logger   *logrus.Logger
	clock    func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		counter:  d.Counter,
		profiles: d.Profiles,
		activity: d.Activity,
		notifier: d.Notifier,
		logger:   d.Logger,
		clock:    d.Clock,
	}
	if s.notifier == nil {
		s.notifier = claim.NopNotifier{}
	}
	if s.logger == nil {
		s.logger = config.DiscardLogger()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// =============================================================================
// CALLS
// =============================================================================

type CallInput struct {
	Title       string
	Agency      string
	Description string
	Deadline    time.Time
	CreatedBy   string
}

func (s *Service) CreateCall(ctx context.Context, in CallInput) (c *Call, err error) {
	ctx, span := tracer.Start(ctx, "emr.CreateCall")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(in.Title) == "" {
		return nil, claim.NewValidationError("title", "a call title is required")
	}
	if strings.TrimSpace(in.Agency) == "" {
		return nil, claim.NewValidationError("agency", "the funding agency is required")
	}
	if in.Deadline.IsZero() {
		return nil, claim.NewValidationError("deadline", "a registration deadline is required")
	}

	seq, err := s.counter.Next(ctx, callCounter)
	if err != nil {
		return nil, s.fail(ctx, "CreateCall", nil, err)
	}
	c = &Call{
		CallID:      formatCallID(seq),
		Title:       strings.TrimSpace(in.Title),
		Agency:      strings.TrimSpace(in.Agency),
		Description: in.Description,
		Deadline:    in.Deadline.UTC(),
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateCall(ctx, c); err != nil {
		return nil, s.fail(ctx, "CreateCall", []string{c.CallID}, err)
	}
	return c, nil
}

func (s *Service) GetCall(ctx context.Context, id string) (*Call, error) {
	c, err := s.store.GetCall(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "GetCall", []string{id}, err)
	}
	return c, nil
}

// ListCalls returns every call, latest deadline first.
func (s *Service) ListCalls(ctx context.Context) ([]*Call, error) {
	calls, err := s.store.ListCalls(ctx)
	if err != nil {
		return nil, s.fail(ctx, "ListCalls", nil, err)
	}
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Deadline.After(calls[j].Deadline) })
	return calls, nil
}

// =============================================================================
// INTERESTS
// =============================================================================

type InterestInput struct {
	UID          string
	UserName     string
	UserEmail    string
	Faculty      string
	ProjectTitle string
	CoPIs        []string
}

// RegisterInterest records a user's interest in an open call. A second
// registration by the same user fails with DuplicateRegistrationError.
func (s *Service) RegisterInterest(ctx context.Context, callID string, in InterestInput) (i *Interest, err error) {
	ctx, span := tracer.Start(ctx, "emr.RegisterInterest", trace.WithAttributes(attribute.String("emr.call", callID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(in.UID) == "" {
		return nil, claim.NewValidationError("uid", "registrant is required")
	}
	if strings.TrimSpace(in.ProjectTitle) == "" {
		return nil, claim.NewValidationError("projectTitle", "a project title is required")
	}

	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !call.Open(now) {
		return nil, claim.NewValidationError("deadline", "registration for %s closed on %s", call.CallID, call.Deadline.Format("2006-01-02"))
	}

	existing, err := s.store.ListInterests(ctx, call.ID)
	if err != nil {
		return nil, s.fail(ctx, "RegisterInterest", []string{call.ID}, err)
	}
	for _, e := range existing {
		if e.UID == in.UID {
			return nil, &claim.DuplicateRegistrationError{UserID: in.UID, CallID: call.CallID}
		}
	}

	i = &Interest{
		CallID:       call.ID,
		UID:          in.UID,
		UserName:     in.UserName,
		UserEmail:    in.UserEmail,
		Faculty:      in.Faculty,
		ProjectTitle: strings.TrimSpace(in.ProjectTitle),
		CoPIs:        append([]string(nil), in.CoPIs...),
		Status:       StatusRegistered,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	s.fillOwner(ctx, i)

	seq, err := s.counter.Next(ctx, interestCounter)
	if err != nil {
		return nil, s.fail(ctx, "RegisterInterest", []string{call.ID, in.UID}, err)
	}
	i.InterestID = formatInterestID(seq)

	if err := s.store.CreateInterest(ctx, i); err != nil {
		if errors.Is(err, claim.ErrDuplicateRegistration) {
			return nil, err
		}
		return nil, s.fail(ctx, "RegisterInterest", []string{call.ID, i.InterestID}, err)
	}

	s.notify(ctx, "RegisterInterest", claim.Notification{
		Kind:         "emr_interest",
		RecipientUID: i.UID,
		To:           nonEmpty(i.UserEmail),
		CCStaff:      true,
		Subject:      fmt.Sprintf("Interest registered for %s", call.CallID),
		Title:        "EMR interest registered",
		Body: fmt.Sprintf("<p>Dear %s,</p><p>Your interest in <b>%s</b> (%s) has been registered as %s.</p>",
			html.EscapeString(i.UserName), html.EscapeString(call.Title), html.EscapeString(call.Agency), i.InterestID),
		Link: "/emr/calls/" + call.ID,
		From: claim.FromRDC,
	})
	return i, nil
}

// ListInterests returns the interests registered for a call, in
// registration order.
func (s *Service) ListInterests(ctx context.Context, callID string) ([]*Interest, error) {
	if _, err := s.GetCall(ctx, callID); err != nil {
		return nil, err
	}
	interests, err := s.store.ListInterests(ctx, callID)
	if err != nil {
		return nil, s.fail(ctx, "ListInterests", []string{callID}, err)
	}
	sort.SliceStable(interests, func(a, b int) bool {
		return interests[a].InterestID < interests[b].InterestID
	})
	return interests, nil
}

func (s *Service) fillOwner(ctx context.Context, i *Interest) {
	if s.profiles == nil || (i.UserName != "" && i.UserEmail != "" && i.Faculty != "") {
		return
	}
	p, err := s.profiles.GetProfile(ctx, i.UID)
	if err != nil {
		if !claim.IsNotFound(err) {
			s.record(ctx, "GetProfile", []string{i.UID}, err)
		}
		return
	}
	if i.UserName == "" {
		i.UserName = p.Name
	}
	if i.UserEmail == "" {
		i.UserEmail = p.Email
	}
	if i.Faculty == "" {
		i.Faculty = p.Faculty
	}
}

// =============================================================================
// MEETINGS
// =============================================================================

// ScheduleMeeting assigns one evaluation meeting to every listed interest
// of the call and notifies each applicant. Interests of another call, and
// unknown or repeated ids, are skipped.
func (s *Service) ScheduleMeeting(ctx context.Context, callID string, interestIDs []string, m Meeting) (result claim.BulkResult, err error) {
	ctx, span := tracer.Start(ctx, "emr.ScheduleMeeting", trace.WithAttributes(
		attribute.String("emr.call", callID),
		attribute.Int("emr.requested", len(interestIDs)),
	))
	defer func() { endSpan(span, err) }()

	if m.Date.IsZero() {
		return result, claim.NewValidationError("date", "a meeting date is required")
	}
	if strings.TrimSpace(m.Venue) == "" {
		return result, claim.NewValidationError("venue", "a meeting venue is required")
	}
	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return result, err
	}

	skip := func(id string) {
		result.Skipped++
		result.SkippedIDs = append(result.SkippedIDs, id)
	}
	seen := make(map[string]bool, len(interestIDs))
	for _, id := range interestIDs {
		if seen[id] {
			skip(id)
			continue
		}
		seen[id] = true

		i, err := s.store.GetInterest(ctx, id)
		if err != nil {
			if !claim.IsNotFound(err) {
				s.record(ctx, "ScheduleMeeting", []string{id}, err)
			}
			skip(id)
			continue
		}
		if i.CallID != call.ID {
			skip(id)
			continue
		}

		meeting := m
		meeting.Evaluators = append([]string(nil), m.Evaluators...)
		i.Meeting = &meeting
		i.Status = StatusMeetingScheduled
		i.UpdatedAt = s.now()
		if err := s.store.UpdateInterest(ctx, i); err != nil {
			s.record(ctx, "ScheduleMeeting", []string{id}, err)
			skip(id)
			continue
		}
		result.Processed++
		s.notify(ctx, "ScheduleMeeting", meetingNotification(call, i))
	}

	s.logger.WithFields(logrus.Fields{
		"callId":    call.CallID,
		"processed": result.Processed,
		"skipped":   result.Skipped,
	}).Info("emr meetings scheduled")
	return result, nil
}

func meetingNotification(call *Call, i *Interest) claim.Notification {
	m := i.Meeting
	body := fmt.Sprintf("<p>Dear %s,</p><p>Your evaluation meeting for <b>%s</b> is scheduled on %s at %s.</p>",
		html.EscapeString(i.UserName), html.EscapeString(call.Title),
		m.Date.Format("02 Jan 2006 15:04"), html.EscapeString(m.Venue))
	if m.Mode != "" {
		body += fmt.Sprintf("<p>Mode: %s</p>", html.EscapeString(m.Mode))
	}
	if m.Notes != "" {
		body += fmt.Sprintf("<p>%s</p>", html.EscapeString(m.Notes))
	}
	return claim.Notification{
		Kind:         "emr_meeting",
		RecipientUID: i.UID,
		To:           nonEmpty(i.UserEmail),
		Subject:      fmt.Sprintf("EMR evaluation meeting: %s", call.CallID),
		Title:        "EMR meeting scheduled",
		Body:         body,
		Link:         "/emr/calls/" + call.ID,
		From:         claim.FromRDC,
	}
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

func (s *Service) storeErr(ctx context.Context, op string, ids []string, err error) error {
	if claim.IsNotFound(err) {
		return err
	}
	return s.fail(ctx, op, ids, err)
}

func (s *Service) fail(ctx context.Context, op string, ids []string, err error) error {
	s.record(ctx, op, ids, err)
	return claim.ErrOperationFailed
}

func (s *Service) record(ctx context.Context, op string, ids []string, err error) {
	config.LogError(s.logger, "emr", op, strings.Join(ids, ","), nil, err)
	if s.activity == nil {
		return
	}
	entry := claim.ActivityEntry{
		ID:        uuid.NewString(),
		Operation: "emr." + op,
		EntityIDs: ids,
		Error:     err.Error(),
		At:        s.now(),
	}
	if aerr := s.activity.Record(ctx, entry); aerr != nil {
		config.LogError(s.logger, "emr", "ActivityLog.Record", op, nil, aerr)
	}
}

func (s *Service) notify(ctx context.Context, op string, n claim.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.record(ctx, op+".notify", []string{n.RecipientUID}, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
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
