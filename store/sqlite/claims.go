package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rdc/incentive-engine/claim"
)

// =============================================================================
// CLAIM STORE (claim.Store interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, id string) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM claims WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &claim.NotFoundError{Kind: "claim", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	return decodeClaim(doc)
}

// Create inserts a new claim with version 1.
func (s *Store) Create(ctx context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Version = 1
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		INSERT INTO claims
		(id, claim_id, claim_type, uid, faculty, status, payment_sheet_ref, version, created_at, updated_at, doc_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.ClaimID, string(c.Type), c.UID, c.Faculty, string(c.Status),
		c.PaymentSheetRef, c.Version, formatTime(c.CreatedAt), formatTime(c.UpdatedAt), string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// Update writes the claim when its version matches the stored one.
func (s *Store) Update(ctx context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *c
	next.Version = c.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		UPDATE claims SET
			faculty = ?, status = ?, payment_sheet_ref = ?, version = ?, updated_at = ?, doc_json = ?
		WHERE id = ? AND version = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		next.Faculty, string(next.Status), next.PaymentSheetRef, next.Version,
		formatTime(next.UpdatedAt), string(doc),
		c.ID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM claims WHERE id = ?", c.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to update claim: %w", err)
		}
		if exists == 0 {
			return &claim.NotFoundError{Kind: "claim", ID: c.ID}
		}
		return claim.ErrConcurrentModification
	}

	c.Version = next.Version
	return nil
}

// Query returns matching claims, oldest first.
func (s *Store) Query(ctx context.Context, f claim.Filter) ([]*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.UID != "" {
		where = append(where, "uid = ?")
		args = append(args, f.UID)
	}
	if f.Faculty != "" {
		where = append(where, "faculty = ?")
		args = append(args, f.Faculty)
	}
	if len(f.Types) > 0 {
		where = append(where, "claim_type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if f.PaymentSheetRef != "" {
		where = append(where, "payment_sheet_ref = ?")
		args = append(args, f.PaymentSheetRef)
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(*f.CreatedTo))
	}

	query := "SELECT doc_json FROM claims"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, claim_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []*claim.Claim
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		c, err := decodeClaim(doc)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func decodeClaim(doc string) (*claim.Claim, error) {
	var c claim.Claim
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to decode claim: %w", err)
	}
	if c.Approvals == nil {
		c.Approvals = []*claim.ApprovalStage{}
	}
	return &c, nil
}

// =============================================================================
// COUNTER (claim.Counter interface)
// =============================================================================

// Next increments and returns the named counter in a single statement.
func (s *Store) Next(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var value int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter %s: %w", name, err)
	}
	return value, nil
}

// =============================================================================
// BATCHES (claim.BatchStore interface)
// =============================================================================

func (s *Store) SaveBatch(ctx context.Context, b *claim.PaymentBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	query := `
		INSERT INTO batches (reference, doc_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET
			doc_json = excluded.doc_json,
			updated_at = excluded.updated_at
	`
	now := formatTime(b.CreatedAt)
	_, err = s.db.ExecContext(ctx, query, b.Reference, string(doc), now, formatTime(timeNow()))
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, ref string) (*claim.PaymentBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM batches WHERE reference = ?", ref).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &claim.NotFoundError{Kind: "batch", ID: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	var b claim.PaymentBatch
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return &b, nil
}
