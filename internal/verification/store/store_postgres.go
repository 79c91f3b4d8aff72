package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

// Schema creates the tables the Postgres backend needs. Applied by the
// deployment's migration step and by integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS verification_requests (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL,
	source_name TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}'::jsonb,
	status      TEXT NOT NULL,
	response    JSONB,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	verified_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_verification_requests_user
	ON verification_requests (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS verified_credentials (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL,
	kind        TEXT NOT NULL,
	issuer_name TEXT NOT NULL,
	title       TEXT NOT NULL,
	issue_date  TEXT NOT NULL,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL,
	metadata    JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verified_credentials_user
	ON verified_credentials (user_id, created_at DESC);
`

// PostgresBackend persists requests and credentials in PostgreSQL.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend wraps an open database handle.
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) InsertRequest(ctx context.Context, req models.VerificationRequest) error {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("encode request payload: %w", err)
	}

	query := `
		INSERT INTO verification_requests
			(id, user_id, source_name, kind, payload, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = b.db.ExecContext(ctx, query,
		req.ID.String(), req.UserID.String(), req.SourceName, string(req.Kind),
		payload, string(req.Status), req.CreatedAt, req.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

// UpdateRequestStatus performs the terminal transition. The WHERE clause on
// status='pending' makes monotonicity atomic: a request already finalized
// matches zero rows, which is then distinguished from a missing request.
func (b *PostgresBackend) UpdateRequestStatus(ctx context.Context, requestID id.RequestID, status models.RequestStatus, response map[string]any, verifiedAt *time.Time) error {
	respJSON, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode response payload: %w", err)
	}

	query := `
		UPDATE verification_requests
		SET status = $2, response = $3, verified_at = $4
		WHERE id = $1 AND status = 'pending'
	`
	result, err := b.db.ExecContext(ctx, query, requestID.String(), string(status), respJSON, verifiedAt)
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var current string
	err = b.db.QueryRowContext(ctx,
		`SELECT status FROM verification_requests WHERE id = $1`, requestID.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load verification request status: %w", err)
	}
	return fmt.Errorf("request %s already %s: %w", requestID, current, sentinel.ErrInvalidState)
}

func (b *PostgresBackend) GetRequest(ctx context.Context, requestID id.RequestID) (*models.VerificationRequest, error) {
	query := `
		SELECT id, user_id, source_name, kind, payload, status, response,
		       created_at, expires_at, verified_at
		FROM verification_requests
		WHERE id = $1
	`
	req, err := scanRequest(b.db.QueryRowContext(ctx, query, requestID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load verification request: %w", err)
	}
	return req, nil
}

func (b *PostgresBackend) ListRequestsByUser(ctx context.Context, userID id.UserID) ([]models.VerificationRequest, error) {
	query := `
		SELECT id, user_id, source_name, kind, payload, status, response,
		       created_at, expires_at, verified_at
		FROM verification_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := b.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	defer rows.Close()

	var out []models.VerificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) InsertCredential(ctx context.Context, cred models.VerifiedCredential) error {
	metadata, err := json.Marshal(cred.Metadata)
	if err != nil {
		return fmt.Errorf("encode credential metadata: %w", err)
	}

	query := `
		INSERT INTO verified_credentials
			(id, user_id, kind, issuer_name, title, issue_date, source, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = b.db.ExecContext(ctx, query,
		cred.ID.String(), cred.UserID.String(), string(cred.Kind), cred.IssuerName,
		cred.Title, cred.IssueDate, cred.Source, string(cred.Status), metadata, cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verified credential: %w", err)
	}
	return nil
}

func (b *PostgresBackend) ListCredentialsByUser(ctx context.Context, userID id.UserID) ([]models.VerifiedCredential, error) {
	query := `
		SELECT id, user_id, kind, issuer_name, title, issue_date, source, status, metadata, created_at
		FROM verified_credentials
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := b.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list verified credentials: %w", err)
	}
	defer rows.Close()

	var out []models.VerifiedCredential
	for rows.Next() {
		var (
			cred           models.VerifiedCredential
			rawID, rawUser string
			kind, status   string
			metadata       []byte
		)
		err := rows.Scan(&rawID, &rawUser, &kind, &cred.IssuerName, &cred.Title,
			&cred.IssueDate, &cred.Source, &status, &metadata, &cred.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan verified credential: %w", err)
		}
		if cred.ID, err = parseCredentialID(rawID); err != nil {
			return nil, err
		}
		if cred.UserID, err = parseUserID(rawUser); err != nil {
			return nil, err
		}
		cred.Kind = models.Kind(kind)
		cred.Status = models.CredentialStatus(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &cred.Metadata); err != nil {
				return nil, fmt.Errorf("decode credential metadata: %w", err)
			}
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.VerificationRequest, error) {
	var (
		req            models.VerificationRequest
		rawID, rawUser string
		kind, status   string
		payload        []byte
		response       []byte
		verifiedAt     sql.NullTime
	)
	err := row.Scan(&rawID, &rawUser, &req.SourceName, &kind, &payload, &status,
		&response, &req.CreatedAt, &req.ExpiresAt, &verifiedAt)
	if err != nil {
		return nil, err
	}

	requestID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("decode request id: %w", err)
	}
	req.ID = id.RequestID(requestID)
	if req.UserID, err = parseUserID(rawUser); err != nil {
		return nil, err
	}
	req.Kind = models.Kind(kind)
	req.Status = models.RequestStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req.Payload); err != nil {
			return nil, fmt.Errorf("decode request payload: %w", err)
		}
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &req.Response); err != nil {
			return nil, fmt.Errorf("decode request response: %w", err)
		}
	}
	if verifiedAt.Valid {
		at := verifiedAt.Time
		req.VerifiedAt = &at
	}
	return &req, nil
}

func parseUserID(raw string) (id.UserID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return id.UserID{}, fmt.Errorf("decode user id: %w", err)
	}
	return id.UserID(u), nil
}

func parseCredentialID(raw string) (id.CredentialID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return id.CredentialID{}, fmt.Errorf("decode credential id: %w", err)
	}
	return id.CredentialID(u), nil
}
