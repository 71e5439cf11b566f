package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/emr"
)

// =============================================================================
// EMR CALLS (emr.Store interface)
// =============================================================================

func (s *Store) CreateCall(ctx context.Context, c *emr.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode call: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO emr_calls (id, call_id, deadline, doc_json) VALUES (?, ?, ?, ?)",
		c.ID, c.CallID, formatTime(c.Deadline), string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to insert call: %w", err)
	}
	return nil
}

func (s *Store) GetCall(ctx context.Context, id string) (*emr.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM emr_calls WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &claim.NotFoundError{Kind: "call", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load call: %w", err)
	}
	var c emr.Call
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to decode call: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCalls(ctx context.Context) ([]*emr.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT doc_json FROM emr_calls ORDER BY call_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var calls []*emr.Call
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		var c emr.Call
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("failed to decode call: %w", err)
		}
		calls = append(calls, &c)
	}
	return calls, rows.Err()
}

// =============================================================================
// EMR INTERESTS (emr.Store interface)
// =============================================================================

// CreateInterest relies on idx_emr_interest_unique for one interest per
// user per call.
func (s *Store) CreateInterest(ctx context.Context, i *emr.Interest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	doc, err := json.Marshal(i)
	if err != nil {
		return fmt.Errorf("failed to encode interest: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emr_interests (id, call_id, uid, interest_id, registered_at, doc_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, i.ID, i.CallID, i.UID, i.InterestID, formatTime(i.RegisteredAt), string(doc))
	if isUniqueConstraintError(err) {
		return &claim.DuplicateRegistrationError{UserID: i.UID, CallID: i.CallID}
	}
	if err != nil {
		return fmt.Errorf("failed to insert interest: %w", err)
	}
	return nil
}

func (s *Store) GetInterest(ctx context.Context, id string) (*emr.Interest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM emr_interests WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &claim.NotFoundError{Kind: "interest", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load interest: %w", err)
	}
	return decodeInterest(doc)
}

func (s *Store) UpdateInterest(ctx context.Context, i *emr.Interest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(i)
	if err != nil {
		return fmt.Errorf("failed to encode interest: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE emr_interests SET doc_json = ? WHERE id = ?", string(doc), i.ID)
	if err != nil {
		return fmt.Errorf("failed to update interest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &claim.NotFoundError{Kind: "interest", ID: i.ID}
	}
	return nil
}

func (s *Store) ListInterests(ctx context.Context, callID string) ([]*emr.Interest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_json FROM emr_interests WHERE call_id = ? ORDER BY registered_at, interest_id",
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query interests: %w", err)
	}
	defer rows.Close()

	var interests []*emr.Interest
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan interest: %w", err)
		}
		i, err := decodeInterest(doc)
		if err != nil {
			return nil, err
		}
		interests = append(interests, i)
	}
	return interests, rows.Err()
}

func decodeInterest(doc string) (*emr.Interest, error) {
	var i emr.Interest
	if err := json.Unmarshal([]byte(doc), &i); err != nil {
		return nil, fmt.Errorf("failed to decode interest: %w", err)
	}
	return &i, nil
}
