/*
disbursement.go - Payment sheets and bulk disbursement transitions

PURPOSE:
  After acceptance an administrator groups claims into a payment sheet
  under a reference number, sends the sheet to accounts, and finally marks
  the payments completed.

BULK SEMANTICS:
  Every operation takes a list of claim ids and handles each claim on its
  own. A claim that is missing, ineligible, in the wrong status, or loses a
  concurrent write is skipped and counted. For every call:

      Processed + Skipped == len(ids)

  Skipped claims are never modified. There is no multi-claim transaction,
  so partial success is the normal outcome.

  | operation              | from                  | to                    |
  |------------------------|-----------------------|-----------------------|
  | GeneratePaymentSheet   | Accepted (eligible)   | Accepted + sheet ref  |
  | SubmitToAccounts       | Accepted              | Submitted to Accounts |
  | MarkPaymentsCompleted  | Submitted to Accounts | Payment Completed     |

SEE ALSO:
  - eligibility.go: The disbursement guard
  - export/: Sheet rendering
*/
package claim

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// PaymentSheet is a rendered batch ready for download.
type PaymentSheet struct {
	Batch    *PaymentBatch `json:"batch"`
	Filename string        `json:"filename"`
	Content  []byte        `json:"content"`
}

// GeneratePaymentSheet assigns reference to every eligible claim in ids and
// renders the sheet for them. Remarks default to each claim's ClaimID.
// Re-running with the same reference is harmless; a claim already on a
// different sheet is skipped. When nothing is eligible the sheet is nil.
//
// The sheet is rendered before any claim is tagged. If rendering fails no
// claim or batch is written and the result is empty.
func (s *Service) GeneratePaymentSheet(ctx context.Context, ids []string, remarks map[string]string, reference string, actor Approver) (sheet *PaymentSheet, result BulkResult, err error) {
	ctx, span := startSpan(ctx, "claim.GeneratePaymentSheet", attribute.Int("claims.requested", len(ids)))
	defer func() { endSpan(span, err) }()

	ref, err := s.normalizeReference(reference)
	if err != nil {
		return nil, result, err
	}
	span.SetAttributes(attribute.String("batch.reference", ref))

	var candidates []*Claim
	s.eachClaim(ctx, "GeneratePaymentSheet", ids, &result, func(c *Claim, eligible bool) bool {
		if !eligible || c.Status != StatusAccepted {
			return false
		}
		if c.PaymentSheetRef != "" && c.PaymentSheetRef != ref {
			return false
		}
		candidates = append(candidates, c)
		return true
	})
	if len(candidates) == 0 {
		return nil, result, nil
	}

	batch, content, err := s.renderBatch(ctx, ref, candidates, remarks, actor)
	if err != nil {
		return nil, BulkResult{}, err
	}

	// Tag claims. A claim lost to a concurrent write is skipped and the
	// sheet is rendered again without it.
	included := make([]*Claim, 0, len(candidates))
	for _, c := range candidates {
		if c.PaymentSheetRef == ref {
			included = append(included, c)
			continue
		}
		c.PaymentSheetRef = ref
		c.UpdatedAt = s.now()
		if err := s.store.Update(ctx, c); err != nil {
			s.record(ctx, "GeneratePaymentSheet", []string{c.ID}, ref, err)
			result.Processed--
			result.skip(c.ID)
			continue
		}
		included = append(included, c)
	}
	span.SetAttributes(attribute.Int("claims.processed", result.Processed))
	if len(included) == 0 {
		return nil, result, nil
	}
	if len(included) < len(candidates) {
		batch, content, err = s.renderBatch(ctx, ref, included, remarks, actor)
		if err != nil {
			// Claims are tagged already and the batch lookup finds them.
			return nil, result, err
		}
	}

	// Claims already carry the reference, so the batch is still found by
	// querying claims even if this write fails.
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		s.record(ctx, "GeneratePaymentSheet", batch.ClaimIDs, "save batch "+ref, err)
	}

	s.logger.WithField("reference", ref).
		WithField("processed", result.Processed).
		WithField("skipped", result.Skipped).
		Info("payment sheet generated")
	return &PaymentSheet{Batch: batch, Filename: sheetFilename(ref), Content: content}, result, nil
}

// renderBatch merges claims into the stored batch for ref and renders
// their rows. Nothing is written.
func (s *Service) renderBatch(ctx context.Context, ref string, claims []*Claim, remarks map[string]string, actor Approver) (*PaymentBatch, []byte, error) {
	batch, err := s.mergeBatch(ctx, ref, claims, remarks, actor)
	if err != nil {
		return nil, nil, err
	}
	if s.renderer == nil {
		return batch, nil, nil
	}
	rows := make([]SheetRow, 0, len(claims))
	for _, c := range claims {
		rows = append(rows, sheetRow(c, batch.Remarks[c.ID]))
	}
	content, err := s.renderer.RenderPaymentSheet(ref, rows)
	if err != nil {
		return nil, nil, s.fail(ctx, "GeneratePaymentSheet", batch.ClaimIDs, "render "+ref, err)
	}
	return batch, content, nil
}

func (s *Service) mergeBatch(ctx context.Context, ref string, included []*Claim, remarks map[string]string, actor Approver) (*PaymentBatch, error) {
	if s.batches == nil {
		return nil, s.fail(ctx, "GeneratePaymentSheet", []string{ref}, "no batch store configured", ErrOperationFailed)
	}
	batch, err := s.batches.GetBatch(ctx, ref)
	if IsNotFound(err) {
		batch, err = &PaymentBatch{Reference: ref, Remarks: map[string]string{}, CreatedBy: actor.UID, CreatedAt: s.now()}, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "GeneratePaymentSheet", []string{ref}, "load batch", err)
	}
	if batch.Remarks == nil {
		batch.Remarks = map[string]string{}
	}

	members := make(map[string]bool, len(batch.ClaimIDs))
	for _, id := range batch.ClaimIDs {
		members[id] = true
	}
	for _, c := range included {
		if !members[c.ID] {
			batch.ClaimIDs = append(batch.ClaimIDs, c.ID)
			members[c.ID] = true
			if c.FinalApprovedAmount != nil {
				batch.Total = batch.Total.Add(*c.FinalApprovedAmount)
			}
		}
		remark := strings.TrimSpace(remarks[c.ID])
		switch {
		case remark != "":
			batch.Remarks[c.ID] = remark
		case batch.Remarks[c.ID] == "":
			batch.Remarks[c.ID] = c.ClaimID
		}
	}
	return batch, nil
}

// SubmitToAccounts moves eligible Accepted claims to Submitted to Accounts.
func (s *Service) SubmitToAccounts(ctx context.Context, ids []string) (result BulkResult, err error) {
	return s.bulkTransition(ctx, "claim.SubmitToAccounts", ids, StatusAccepted, StatusSubmittedToAccounts)
}

// MarkPaymentsCompleted moves eligible Submitted to Accounts claims to
// Payment Completed.
func (s *Service) MarkPaymentsCompleted(ctx context.Context, ids []string) (result BulkResult, err error) {
	return s.bulkTransition(ctx, "claim.MarkPaymentsCompleted", ids, StatusSubmittedToAccounts, StatusPaymentCompleted)
}

func (s *Service) bulkTransition(ctx context.Context, op string, ids []string, from, to Status) (result BulkResult, err error) {
	ctx, span := startSpan(ctx, op, attribute.Int("claims.requested", len(ids)))
	defer func() { endSpan(span, err) }()

	var moved []*Claim
	s.eachClaim(ctx, op, ids, &result, func(c *Claim, eligible bool) bool {
		if !eligible || c.Status != from {
			return false
		}
		c.Status = to
		c.UpdatedAt = s.now()
		if err := s.store.Update(ctx, c); err != nil {
			s.record(ctx, op, []string{c.ID}, to, err)
			return false
		}
		moved = append(moved, c)
		return true
	})

	for _, c := range moved {
		s.notify(ctx, op, statusNotification(c, nil))
	}
	span.SetAttributes(attribute.Int("claims.processed", result.Processed))
	return result, nil
}

// eachClaim loads every id once and hands it to fn with its eligibility.
// fn returns true when it processed the claim. Duplicate, missing and
// unreadable ids are skipped.
func (s *Service) eachClaim(ctx context.Context, op string, ids []string, result *BulkResult, fn func(c *Claim, eligible bool) bool) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			result.skip(id)
			continue
		}
		seen[id] = true

		c, err := s.store.Get(ctx, id)
		if err != nil {
			if !IsNotFound(err) {
				s.record(ctx, op, []string{id}, "load", err)
			}
			result.skip(id)
			continue
		}
		eligible, err := s.IsEligibleForFinancialDisbursement(ctx, c)
		if err != nil {
			result.skip(id)
			continue
		}
		if fn(c, eligible) {
			result.Processed++
		} else {
			result.skip(id)
		}
	}
}

// Batch returns a payment batch and the claims carrying its reference.
func (s *Service) Batch(ctx context.Context, reference string) (*PaymentBatch, []*Claim, error) {
	ref, err := s.normalizeReference(reference)
	if err != nil {
		return nil, nil, err
	}
	claims, err := s.List(ctx, Filter{PaymentSheetRef: ref})
	if err != nil {
		return nil, nil, err
	}

	var batch *PaymentBatch
	if s.batches != nil {
		batch, err = s.batches.GetBatch(ctx, ref)
		if err != nil && !IsNotFound(err) {
			return nil, nil, s.fail(ctx, "Batch", []string{ref}, nil, err)
		}
	}
	if batch == nil {
		if len(claims) == 0 {
			return nil, nil, &NotFoundError{Kind: "batch", ID: ref}
		}
		batch = &PaymentBatch{Reference: ref, Remarks: map[string]string{}}
		for _, c := range claims {
			batch.ClaimIDs = append(batch.ClaimIDs, c.ID)
			batch.Remarks[c.ID] = c.ClaimID
			if c.FinalApprovedAmount != nil {
				batch.Total = batch.Total.Add(*c.FinalApprovedAmount)
			}
		}
	}
	return batch, claims, nil
}

func (s *Service) normalizeReference(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", NewValidationError("referenceNumber", "a reference number is required")
	}
	if s.refPrefix != "" && !strings.HasPrefix(ref, s.refPrefix) {
		ref = s.refPrefix + ref
	}
	return ref, nil
}

func sheetRow(c *Claim, remark string) SheetRow {
	row := SheetRow{
		ClaimID:   c.ClaimID,
		UserName:  c.UserName,
		Faculty:   c.Faculty,
		ClaimType: c.Type,
		Amount:    decimal.Zero,
		Remarks:   remark,
	}
	if c.BankDetails != nil {
		row.Bank = *c.BankDetails
	}
	if c.FinalApprovedAmount != nil {
		row.Amount = *c.FinalApprovedAmount
	}
	return row
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sheetFilename(ref string) string {
	return fmt.Sprintf("payment-sheet-%s.xlsx", strings.Trim(unsafeFilename.ReplaceAllString(ref, "-"), "-"))
}
