package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/notify"
)

// =============================================================================
// ACTIVITY LOG (claim.ActivityLog interface)
// =============================================================================

func (s *Store) Record(ctx context.Context, e claim.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = timeNow()
	}
	ids, _ := json.Marshal(e.EntityIDs)
	var ctxJSON sql.NullString
	if len(e.Context) > 0 {
		b, _ := json.Marshal(e.Context)
		ctxJSON = nullString(string(b))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, operation, entity_ids_json, error, context_json, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Operation, string(ids), e.Error, ctxJSON, formatTime(e.At))
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// RecentActivity returns the latest entries, newest first.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]claim.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, entity_ids_json, error, context_json, at
		FROM activity_log
		ORDER BY at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var entries []claim.ActivityEntry
	for rows.Next() {
		var (
			e       claim.ActivityEntry
			ids     string
			ctxJSON sql.NullString
			at      string
		)
		if err := rows.Scan(&e.ID, &e.Operation, &ids, &e.Error, &ctxJSON, &at); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		_ = json.Unmarshal([]byte(ids), &e.EntityIDs)
		if ctxJSON.Valid {
			_ = json.Unmarshal([]byte(ctxJSON.String), &e.Context)
		}
		e.At = parseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// PROFILES (claim.ProfileStore interface)
// =============================================================================

func (s *Store) PutProfile(ctx context.Context, p *claim.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (uid, doc_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			doc_json = excluded.doc_json,
			updated_at = excluded.updated_at
	`, p.UID, string(doc), formatTime(timeNow()))
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, uid string) (*claim.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM users WHERE uid = ?", uid).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &claim.NotFoundError{Kind: "user", ID: uid}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	var p claim.UserProfile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &p, nil
}

// =============================================================================
// NOTICES (notify.NoticeStore interface)
// =============================================================================

func (s *Store) SaveNotice(ctx context.Context, n *notify.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = timeNow()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices (id, uid, kind, title, body, link, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UID, n.Kind, n.Title, n.Body, nullString(n.Link), n.Read, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save notice: %w", err)
	}
	return nil
}

// ListNotices returns a user's notices, newest first.
func (s *Store) ListNotices(ctx context.Context, uid string) ([]*notify.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uid, kind, title, body, link, read, created_at
		FROM notices
		WHERE uid = ?
		ORDER BY created_at DESC, rowid DESC
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to query notices: %w", err)
	}
	defer rows.Close()

	var notices []*notify.Notice
	for rows.Next() {
		var (
			n         notify.Notice
			link      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UID, &n.Kind, &n.Title, &n.Body, &link, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notice: %w", err)
		}
		n.Link = link.String
		n.CreatedAt = parseTime(createdAt)
		notices = append(notices, &n)
	}
	return notices, rows.Err()
}

func (s *Store) MarkNoticeRead(ctx context.Context, uid, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE notices SET read = TRUE WHERE id = ? AND uid = ?", id, uid)
	if err != nil {
		return fmt.Errorf("failed to update notice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &claim.NotFoundError{Kind: "notice", ID: id}
	}
	return nil
}
