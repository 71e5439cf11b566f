/*
workflow.go - Claim workflow orchestrator

PURPOSE:
  Drives a claim from submission through the stage engine to a terminal
  status. Every operation is a single request: load, decide, write once,
  then notify. Nothing runs in the background.

KEY OPERATIONS:
  SubmitClaim:       Sequential claim id, calculation, bank snapshot
  UpdateDraft:       Owner edits a draft, incentive recalculated
  SubmitDraft:       Owner sends a draft into Pending Stage 1 Approval
  AttachProof:       Upload a proof document to file storage
  SubmitStageAction: Reviewer action through the stage engine
  Buckets:           The five admin tabs, derived on every call

FAILURE POLICY:
  - Domain errors (validation, checklist, finalized, not found) are
    returned unchanged so the caller can show them.
  - Infrastructure errors are written to the activity log and to the
    logger, then replaced by ErrOperationFailed.
  - Notification failures are logged and recorded but never undo the
    write that triggered them.

SEE ALSO:
  - stage.go: Pure stage engine
  - disbursement.go: Payment sheets and bulk transitions
  - store.go: Collaborator contracts
*/
package claim

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rdc/incentive-engine/config"
)

var tracer = otel.Tracer("github.com/rdc/incentive-engine/claim")

// Calculator computes the tentative incentive for a claim.
type Calculator interface {
	Calculate(c *Claim) (Calculation, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Deps are the service's collaborators. Store, Counter and Calculator
// are required; the rest have safe defaults.
type Deps struct {
	Store      Store
	Counter    Counter
	Batches    BatchStore
	Profiles   ProfileStore
	Activity   ActivityLog
	Files      FileStore
	Renderer   SheetRenderer
	Notifier   Notifier
	Calculator Calculator

	Chain           Chain
	Policies        []EligibilityPolicy
	ReferencePrefix string

	Logger *logrus.Logger
	Clock  func() time.Time
}

type Service struct {
	store    Store
	counter  Counter
	batches  BatchStore
	profiles ProfileStore
	activity ActivityLog
	files    FileStore
	renderer SheetRenderer
	notifier Notifier
	calc     Calculator
	engine   *Engine

	policies  []EligibilityPolicy
	refPrefix string
	logger    *logrus.Logger
	clock     func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:     d.Store,
		counter:   d.Counter,
		batches:   d.Batches,
		profiles:  d.Profiles,
		activity:  d.Activity,
		files:     d.Files,
		renderer:  d.Renderer,
		notifier:  d.Notifier,
		calc:      d.Calculator,
		engine:    NewEngine(d.Chain),
		policies:  d.Policies,
		refPrefix: d.ReferencePrefix,
		logger:    d.Logger,
		clock:     d.Clock,
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.policies == nil {
		s.policies = DefaultPolicies()
	}
	if s.logger == nil {
		s.logger = config.DiscardLogger()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) now() time.Time { return s.clock().UTC() }

// =============================================================================
// SUBMISSION
// =============================================================================

type SubmitInput struct {
	UID       string
	UserName  string
	UserEmail string
	Faculty   string
	Type      ClaimType
	Variant   Variant
	Draft     bool
}

// SubmitClaim creates a claim with a new sequential ClaimID. A draft stays
// editable by its owner; anything else goes straight to stage 1.
func (s *Service) SubmitClaim(ctx context.Context, in SubmitInput) (c *Claim, err error) {
	ctx, span := startSpan(ctx, "claim.SubmitClaim", attribute.String("claim.type", string(in.Type)))
	defer func() { endSpan(span, err) }()

	if in.Type == "" {
		return nil, ErrMissingClaimType
	}
	if !in.Type.Valid() {
		return nil, NewValidationError("claimType", "unknown claim type %q", in.Type)
	}
	if strings.TrimSpace(in.UID) == "" {
		return nil, NewValidationError("uid", "submitter is required")
	}
	variant := in.Variant.Only(in.Type).Clone()
	if !in.Draft && variant.For(in.Type) == nil {
		return nil, NewValidationError("details", "%s details are required", in.Type)
	}

	now := s.now()
	c = &Claim{
		Type:      in.Type,
		UID:       in.UID,
		UserName:  in.UserName,
		UserEmail: in.UserEmail,
		Faculty:   in.Faculty,
		Variant:   variant,
		Status:    StatusDraft,
		Approvals: []*ApprovalStage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.recalculate(c); err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, in.UID)
	if err != nil {
		return nil, err
	}
	fillOwner(c, profile)
	if !in.Draft {
		markSubmitted(c, profile, now)
	}

	// Calculated before the counter so that a validation failure does not
	// burn a sequence number.
	seq, err := s.counter.Next(ctx, CounterName(in.Type))
	if err != nil {
		return nil, s.fail(ctx, "SubmitClaim", []string{in.UID}, "counter "+CounterName(in.Type), err)
	}
	c.ClaimID = FormatClaimID(in.Type, seq)

	if err := s.store.Create(ctx, c); err != nil {
		return nil, s.fail(ctx, "SubmitClaim", []string{in.UID, c.ClaimID}, "create", err)
	}
	span.SetAttributes(attribute.String("claim.id", c.ID))

	if !in.Draft {
		s.notify(ctx, "SubmitClaim", submittedNotification(c))
	}
	return c, nil
}

// UpdateDraft replaces a draft's details. Only the owner may edit, and only
// while the claim is a draft.
func (s *Service) UpdateDraft(ctx context.Context, id, uid string, v Variant) (c *Claim, err error) {
	ctx, span := startSpan(ctx, "claim.UpdateDraft", attribute.String("claim.id", id))
	defer func() { endSpan(span, err) }()

	c, err = s.ownedDraft(ctx, id, uid)
	if err != nil {
		return nil, err
	}
	c.Variant = v.Only(c.Type).Clone()
	if err := s.recalculate(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, s.storeErr(ctx, "UpdateDraft", []string{id}, err)
	}
	return c, nil
}

// SubmitDraft moves the owner's draft to Pending Stage 1 Approval and takes
// the bank details snapshot.
func (s *Service) SubmitDraft(ctx context.Context, id, uid string) (c *Claim, err error) {
	ctx, span := startSpan(ctx, "claim.SubmitDraft", attribute.String("claim.id", id))
	defer func() { endSpan(span, err) }()

	c, err = s.ownedDraft(ctx, id, uid)
	if err != nil {
		return nil, err
	}
	if c.Details() == nil {
		return nil, NewValidationError("details", "%s details are required", c.Type)
	}
	if err := s.recalculate(c); err != nil {
		return nil, err
	}
	profile, err := s.profile(ctx, uid)
	if err != nil {
		return nil, err
	}
	fillOwner(c, profile)

	now := s.now()
	markSubmitted(c, profile, now)
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, s.storeErr(ctx, "SubmitDraft", []string{id}, err)
	}
	s.notify(ctx, "SubmitDraft", submittedNotification(c))
	return c, nil
}

func (s *Service) ownedDraft(ctx context.Context, id, uid string) (*Claim, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "Get", []string{id}, err)
	}
	if c.UID != uid {
		return nil, ErrForbidden
	}
	if c.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only drafts can be edited, claim is %s", ErrActionNotAllowed, c.Status)
	}
	return c, nil
}

// Preview calculates the incentive for unsaved input. Used for live preview
// while a draft is being filled in.
func (s *Service) Preview(c *Claim) (Calculation, error) {
	if c == nil || c.Type == "" {
		return Calculation{}, ErrMissingClaimType
	}
	return s.calc.Calculate(c)
}

func (s *Service) recalculate(c *Claim) error {
	calc, err := s.calc.Calculate(c)
	if err != nil {
		return err
	}
	amt := calc.Amount
	c.CalculatedIncentive = &amt
	c.Breakdown = calc.Breakdown
	return nil
}

func (s *Service) profile(ctx context.Context, uid string) (*UserProfile, error) {
	if s.profiles == nil {
		return nil, nil
	}
	p, err := s.profiles.GetProfile(ctx, uid)
	if IsNotFound(err) {
		s.logger.WithField("uid", uid).Warn("no profile found, claim has no bank details snapshot")
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "GetProfile", []string{uid}, nil, err)
	}
	return p, nil
}

func fillOwner(c *Claim, p *UserProfile) {
	if p == nil {
		return
	}
	if c.UserName == "" {
		c.UserName = p.Name
	}
	if c.UserEmail == "" {
		c.UserEmail = p.Email
	}
	if c.Faculty == "" {
		c.Faculty = p.Faculty
	}
}

// markSubmitted sends the claim to stage 1 and copies the bank details.
// Later profile edits never reach an already submitted claim.
func markSubmitted(c *Claim, p *UserProfile, now time.Time) {
	c.Status = PendingStatus(0)
	c.SubmittedAt = &now
	if p != nil {
		c.BankDetails = clonePtr(p.Bank)
	}
}

// =============================================================================
// PROOFS
// =============================================================================

// AttachProof uploads a proof document for the owner's claim. A failed
// upload leaves the claim unchanged.
func (s *Service) AttachProof(ctx context.Context, id, uid, filename string, data []byte, contentType string) (c *Claim, err error) {
	ctx, span := startSpan(ctx, "claim.AttachProof", attribute.String("claim.id", id))
	defer func() { endSpan(span, err) }()

	filename = strings.TrimSpace(path.Base(filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, NewValidationError("file", "a file name is required")
	}
	if len(data) == 0 {
		return nil, NewValidationError("file", "the file is empty")
	}
	if s.files == nil {
		return nil, s.fail(ctx, "AttachProof", []string{id}, "no file store configured", ErrUploadFailure)
	}

	c, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "AttachProof", []string{id}, err)
	}
	if c.UID != uid {
		return nil, ErrForbidden
	}
	if c.Status.IsFinal() {
		return nil, &FinalizedError{ClaimID: c.ClaimID, Status: c.Status}
	}

	objectPath := path.Join("claims", c.ID, uuid.NewString()+"-"+filename)
	url, err := s.files.Upload(ctx, objectPath, data, contentType)
	if err != nil {
		s.record(ctx, "AttachProof", []string{id, objectPath}, "upload", err)
		return nil, fmt.Errorf("%w: %s", ErrUploadFailure, filename)
	}
	if err := s.files.MakePublic(ctx, objectPath); err != nil {
		s.record(ctx, "AttachProof", []string{id, objectPath}, "make public", err)
		s.removeObject(ctx, objectPath)
		return nil, fmt.Errorf("%w: %s", ErrUploadFailure, filename)
	}

	now := s.now()
	c.Proofs = append(c.Proofs, Attachment{
		Name:        filename,
		Path:        objectPath,
		URL:         url,
		ContentType: contentType,
		UploadedAt:  now,
	})
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		s.removeObject(ctx, objectPath)
		return nil, s.storeErr(ctx, "AttachProof", []string{id}, err)
	}
	return c, nil
}

func (s *Service) removeObject(ctx context.Context, objectPath string) {
	if err := s.files.Delete(ctx, objectPath); err != nil {
		s.record(ctx, "DeleteProof", []string{objectPath}, "cleanup", err)
	}
}

// =============================================================================
// STAGE ACTIONS
// =============================================================================

// StageResult is the outcome of a reviewer action.
type StageResult struct {
	Claim              *Claim   `json:"claim"`
	ChangedSuggestions []string `json:"changedSuggestions"`
}

// SubmitStageAction applies a reviewer action at a stage and persists it.
// A concurrent write to the same claim fails with ErrConcurrentModification.
func (s *Service) SubmitStageAction(ctx context.Context, id string, stageIndex int, approver Approver, action Action, p StagePayload) (res *StageResult, err error) {
	ctx, span := startSpan(ctx, "claim.SubmitStageAction",
		attribute.String("claim.id", id),
		attribute.Int("claim.stage", stageIndex),
		attribute.String("claim.action", string(action)),
	)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(approver.UID) == "" {
		return nil, NewValidationError("approver", "approver is required")
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "SubmitStageAction", []string{id}, err)
	}

	next, changed, err := s.engine.Apply(c, stageIndex, approver, action, p, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, next); err != nil {
		return nil, s.storeErr(ctx, "SubmitStageAction", []string{id}, err)
	}

	s.logger.WithFields(logrus.Fields{
		"claimId":  next.ClaimID,
		"stage":    stageIndex + 1,
		"action":   action,
		"status":   next.Status,
		"approver": approver.UID,
	}).Info("stage action recorded")

	s.notify(ctx, "SubmitStageAction", statusNotification(next, next.Stage(stageIndex)))
	if changed == nil {
		changed = []string{}
	}
	return &StageResult{Claim: next, ChangedSuggestions: changed}, nil
}

// Prefill returns the reviewer form defaults for a stage.
func (s *Service) Prefill(ctx context.Context, id string, stageIndex int) (Prefill, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Prefill{}, err
	}
	if stageIndex < 0 || stageIndex >= s.engine.Stages(c.Type) {
		return Prefill{}, fmt.Errorf("%w: stage %d does not exist for %s", ErrStageOutOfOrder, stageIndex+1, c.Type)
	}
	return s.engine.Prefill(c, stageIndex), nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Get(ctx context.Context, id string) (*Claim, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "Get", []string{id}, err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Claim, error) {
	claims, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, s.fail(ctx, "List", nil, f, err)
	}
	return claims, nil
}

// Buckets derives the admin tabs from the claims matching f.
func (s *Service) Buckets(ctx context.Context, f Filter) (Buckets, error) {
	claims, err := s.List(ctx, f)
	if err != nil {
		return Buckets{}, err
	}
	return Bucketize(claims), nil
}

// IsEligibleForFinancialDisbursement loads the submitter's history and
// applies the disbursement guard.
func (s *Service) IsEligibleForFinancialDisbursement(ctx context.Context, c *Claim) (bool, error) {
	history, err := s.history(ctx, c)
	if err != nil {
		return false, err
	}
	return EligibleForDisbursement(c, history, s.policies), nil
}

func (s *Service) history(ctx context.Context, c *Claim) ([]*Claim, error) {
	history, err := s.store.Query(ctx, Filter{UID: c.UID, Types: []ClaimType{c.Type}})
	if err != nil {
		return nil, s.fail(ctx, "History", []string{c.ID}, nil, err)
	}
	return history, nil
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

// storeErr keeps domain errors and hides everything else.
func (s *Service) storeErr(ctx context.Context, op string, ids []string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConcurrentModification) {
		return err
	}
	return s.fail(ctx, op, ids, nil, err)
}

func (s *Service) fail(ctx context.Context, op string, ids []string, data any, err error) error {
	s.record(ctx, op, ids, data, err)
	return ErrOperationFailed
}

func (s *Service) record(ctx context.Context, op string, ids []string, data any, err error) {
	config.LogError(s.logger, "claim", op, strings.Join(ids, ","), data, err)
	if s.activity == nil {
		return
	}
	entry := ActivityEntry{
		ID:        uuid.NewString(),
		Operation: op,
		EntityIDs: ids,
		Error:     err.Error(),
		At:        s.now(),
	}
	if data != nil {
		entry.Context = map[string]string{"data": fmt.Sprint(data)}
	}
	if aerr := s.activity.Record(ctx, entry); aerr != nil {
		config.LogError(s.logger, "claim", "ActivityLog.Record", op, nil, aerr)
	}
}

func (s *Service) notify(ctx context.Context, op string, n Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.record(ctx, op+".notify", []string{n.RecipientUID}, n.Kind, err)
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
