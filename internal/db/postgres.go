package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rawblock/ring-engine/pkg/models"
)

// schemaSQL is compiled into the binary so schema init works from the
// runtime image, which does not ship the source tree.
//
//go:embed schema.sql
var schemaSQL string

// ErrReportNotFound is returned when no stored run has the requested id
var ErrReportNotFound = errors.New("report not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for report storage")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the pool can reach the server
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Report schema initialized")
	return nil
}

// ReportInfo is the listing view of one stored run
type ReportInfo struct {
	ID                    string          `json:"analysisId"`
	SourceName            string          `json:"sourceName"`
	CreatedAt             time.Time       `json:"createdAt"`
	TotalAccounts         int             `json:"totalAccounts"`
	FlaggedAccounts       int             `json:"flaggedAccounts"`
	RingsDetected         int             `json:"ringsDetected"`
	ProcessingTimeSeconds float64         `json:"processingTimeSeconds"`
	TotalVolume           decimal.Decimal `json:"totalVolume"`
}

// TotalVolume sums every transfer in the projection without float drift
func TotalVolume(result *models.AnalysisResult) decimal.Decimal {
	total := decimal.Zero
	for _, link := range result.Graph.Links {
		total = total.Add(decimal.NewFromFloat(link.Amount))
	}
	return total
}

// SaveReport persists a finished run: the full result document plus the
// ring and account tables used for cross-run queries.
func (s *PostgresStore) SaveReport(ctx context.Context, id uuid.UUID, sourceName string, result *models.AnalysisResult) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %v", err)
	}
	summary := result.Analysis.Summary

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertRunSQL := `
		INSERT INTO analysis_runs
			(id, source_name, total_accounts, flagged_accounts, rings_detected,
			 processing_seconds, total_volume, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8);
	`
	_, err = tx.Exec(ctx, insertRunSQL,
		id,
		sourceName,
		summary.TotalAccountsAnalyzed,
		summary.SuspiciousAccountsFlagged,
		summary.FraudRingsDetected,
		summary.ProcessingTimeSeconds,
		TotalVolume(result).String(),
		doc,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis_runs: %v", err)
	}

	batch := &pgx.Batch{}
	for _, ring := range result.Analysis.FraudRings {
		batch.Queue(`
			INSERT INTO fraud_rings (run_id, ring_id, pattern_type, member_accounts, risk_score)
			VALUES ($1, $2, $3, $4, $5);
		`, id, ring.RingID, ring.PatternType, ring.MemberAccounts, ring.RiskScore)
	}
	for rank, acct := range result.Analysis.SuspiciousAccounts {
		batch.Queue(`
			INSERT INTO suspicious_accounts (run_id, rank, account_id, suspicion_score, detected_patterns, ring_id)
			VALUES ($1, $2, $3, $4, $5, $6);
		`, id, rank+1, acct.AccountID, acct.SuspicionScore, acct.DetectedPatterns, acct.RingID)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert rings/accounts: %v", err)
		}
	}

	return tx.Commit(ctx)
}

// GetReport loads the stored result document of one run
func (s *PostgresStore) GetReport(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM analysis_runs WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("stored result %s is corrupt: %v", id, err)
	}
	result.AnalysisID = id.String()
	return &result, nil
}

// ListReports returns stored runs, newest first
func (s *PostgresStore) ListReports(ctx context.Context, page int, limit int) ([]ReportInfo, int, error) {
	page, limit = normalizePage(page, limit)
	offset := (page - 1) * limit

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_runs`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT id, source_name, created_at, total_accounts, flagged_accounts,
		       rings_detected, processing_seconds, total_volume::text
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, dataSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := make([]ReportInfo, 0)
	for rows.Next() {
		var (
			r      ReportInfo
			id     uuid.UUID
			volume string
		)
		err := rows.Scan(&id, &r.SourceName, &r.CreatedAt, &r.TotalAccounts, &r.FlaggedAccounts,
			&r.RingsDetected, &r.ProcessingTimeSeconds, &volume)
		if err != nil {
			return nil, 0, err
		}
		r.ID = id.String()
		if r.TotalVolume, err = decimal.NewFromString(volume); err != nil {
			return nil, 0, fmt.Errorf("bad total_volume for %s: %v", r.ID, err)
		}
		reports = append(reports, r)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return reports, totalCount, nil
}

// AccountHistory returns how often an account was flagged across stored runs
func (s *PostgresStore) AccountHistory(ctx context.Context, accountID string) (runs int, maxScore float64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(MAX(suspicion_score), 0)
		FROM suspicious_accounts
		WHERE account_id = $1
	`, accountID).Scan(&runs, &maxScore)
	return runs, maxScore, err
}

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	return page, limit
}
