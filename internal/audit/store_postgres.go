package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore appends audit events to the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on the audit_events table.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (id, occurred_at, action, certificate_id, template_type, subject, request_id, client_ip, device, error_code, pages, cached, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Action),
		event.CertificateID,
		event.TemplateType,
		event.Subject,
		event.RequestID,
		event.ClientIP,
		event.Device,
		event.ErrorCode,
		event.Pages,
		event.Cached,
		event.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListByCertificate returns a certificate's events, oldest first.
func (s *PostgresStore) ListByCertificate(ctx context.Context, certificateID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, action, certificate_id, template_type, subject, request_id, client_ip, device, error_code, pages, cached, duration_ms
		FROM audit_events
		WHERE certificate_id = $1
		ORDER BY occurred_at, id
	`, certificateID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			action string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &e.CertificateID, &e.TemplateType,
			&e.Subject, &e.RequestID, &e.ClientIP, &e.Device, &e.ErrorCode, &e.Pages, &e.Cached, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
