package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"certexport/internal/certificate/codec"
	"certexport/internal/certificate/models"
	"certexport/pkg/platform/sentinel"
)

// PostgresStore persists tokens in PostgreSQL. Claims are stored in their
// deterministic CBOR encoding, which keeps the bundled template.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithClock sets the clock used for created_at and updated_at.
func WithClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres creates a certificate store on the certificates table.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Save upserts the token under its UVCI.
func (s *PostgresStore) Save(ctx context.Context, tok models.Token) error {
	id := tok.ID()
	if id == "" {
		return fmt.Errorf("save certificate: %w", sentinel.ErrInvalidState)
	}
	claims, err := codec.EncodeCBOR(tok)
	if err != nil {
		return fmt.Errorf("encode certificate: %w", err)
	}
	now := s.clock()
	query := `
		INSERT INTO certificates (id, issuer_country, issued_at, expires_at, qr_payload, claims, entry_types, has_template, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO UPDATE SET
			issuer_country = EXCLUDED.issuer_country,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			qr_payload = EXCLUDED.qr_payload,
			claims = EXCLUDED.claims,
			entry_types = EXCLUDED.entry_types,
			has_template = EXCLUDED.has_template,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		id,
		tok.IssuerCountry,
		nullTime(tok.IssuedAt),
		nullTime(tok.ExpiresAt),
		tok.QRPayload,
		claims,
		pq.Array(entryTypes(tok)),
		tok.Certificate.CanExport(),
		now,
	)
	if err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

// FindByID returns sentinel.ErrNotFound for an unknown id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (models.Token, error) {
	var (
		claims    []byte
		qrPayload string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT claims, qr_payload FROM certificates WHERE id = $1`, id,
	).Scan(&claims, &qrPayload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Token{}, sentinel.ErrNotFound
		}
		return models.Token{}, fmt.Errorf("find certificate: %w", err)
	}
	tok, err := codec.DecodeCBOR(claims)
	if err != nil {
		return models.Token{}, fmt.Errorf("decode certificate %s: %w", id, err)
	}
	tok.QRPayload = qrPayload
	return tok, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListByTemplateType returns the ids of certificates with entries of type t.
func (s *PostgresStore) ListByTemplateType(ctx context.Context, t models.TemplateType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM certificates WHERE entry_types @> $1 ORDER BY id`,
		pq.Array([]string{string(t)}),
	)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan certificate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return ids, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
