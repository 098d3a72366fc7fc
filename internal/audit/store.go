// Package audit persists one row per moderation verdict.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/af-corp/aegis-moderation/internal/types"
)

const writeTimeout = 2 * time.Second

// Execer is the subset of *pgxpool.Pool the store needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record is one stored verdict.
type Record struct {
	ID        uuid.UUID
	RequestID string
	Verdict   *types.ModerationVerdict
	CreatedAt time.Time
}

// Store writes verdict records to PostgreSQL. A nil *Store discards records.
type Store struct {
	db     Execer
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewStore(db Execer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Insert writes rec synchronously.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec.Verdict)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO moderation_verdicts (id, request_id, action, score, categories, verdict, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		rec.ID,
		rec.RequestID,
		string(rec.Verdict.Action),
		rec.Verdict.Score,
		rec.Verdict.Categories.Strings(),
		string(body),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert moderation_verdicts: %w", err)
	}
	return nil
}

// RecordAsync stores v in the background. Failures are logged and never
// reach the caller.
func (s *Store) RecordAsync(requestID string, v *types.ModerationVerdict) {
	if s == nil || v == nil {
		return
	}
	rec := Record{ID: uuid.New(), RequestID: requestID, Verdict: v, CreatedAt: s.now().UTC()}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.Insert(ctx, rec); err != nil {
			s.logger.Error("audit write failed", "request_id", requestID, "error", err)
		}
	}()
}

// Wait blocks until every pending background write has finished.
func (s *Store) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}
