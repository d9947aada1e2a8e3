package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StoredAssessment is an assessment row read back from the database.
type StoredAssessment struct {
	ID             int64
	UserID         string
	Score          float64
	Category       string
	ImprovementTip string
	Payload        []byte
	CreatedAt      time.Time
}

// PGStore persists assessments in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the database and verifies the connection.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// CreateAssessment inserts one assessment and returns its id.
func (s *PGStore) CreateAssessment(ctx context.Context, a Assessment) (int64, error) {
	const q = `
		INSERT INTO assessments (user_id, score, category, improvement_tip, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, q, a.UserID, a.Score, a.Category, a.ImprovementTip, a.Payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert assessment: %w", err)
	}
	return id, nil
}

// Assessments lists a user's saved assessments, newest first.
func (s *PGStore) Assessments(ctx context.Context, userID string) ([]StoredAssessment, error) {
	const q = `
		SELECT id, user_id, score, category, improvement_tip, payload, created_at
		FROM assessments
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []StoredAssessment
	for rows.Next() {
		var a StoredAssessment
		if err := rows.Scan(&a.ID, &a.UserID, &a.Score, &a.Category, &a.ImprovementTip, &a.Payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
