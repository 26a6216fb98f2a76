package repository

import (
	"context"
	"database/sql"

	"github.com/waflowhq/waflow-backend/internal/model"
)

type WebhookEventRepositoryInterface interface {
	Insert(ctx context.Context, ev *model.WebhookEvent) error
	MarkProcessed(ctx context.Context, id int64, errorMessage string) error
	LinkAudience(ctx context.Context, id, campaignID, audienceID int64) error
	FindUnprocessed(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
	FindByOrganization(ctx context.Context, orgID int64, offset, limit int) ([]*model.WebhookEvent, error)
	GetStatistics(ctx context.Context, orgID int64) (map[string]int, error)
}

type WebhookEventRepository struct {
	DB *sql.DB
}

const webhookEventColumns = `id, organization_id, campaign_id, campaign_audience_id,
        event_type, message_id, from_number, to_number, raw_payload, interactive_data,
        processed, error_message, received_at`

func scanWebhookEvent(row interface{ Scan(...any) error }) (*model.WebhookEvent, error) {
	var ev model.WebhookEvent
	err := row.Scan(
		&ev.ID, &ev.OrganizationID, &ev.CampaignID, &ev.CampaignAudienceID,
		&ev.EventType, &ev.MessageID, &ev.FromNumber, &ev.ToNumber, &ev.RawPayload, &ev.InteractiveData,
		&ev.Processed, &ev.ErrorMessage, &ev.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Insert persists the raw event unconditionally; the audit trail is
// append-only and rows are created with processed=false.
func (r *WebhookEventRepository) Insert(ctx context.Context, ev *model.WebhookEvent) error {
	query := `
        INSERT INTO webhook_events
            (organization_id, campaign_id, campaign_audience_id, event_type, message_id,
             from_number, to_number, raw_payload, interactive_data, processed, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NOW())
        RETURNING id, received_at
    `
	return r.DB.QueryRowContext(ctx, query,
		ev.OrganizationID, ev.CampaignID, ev.CampaignAudienceID, ev.EventType, ev.MessageID,
		ev.FromNumber, ev.ToNumber, ev.RawPayload, ev.InteractiveData,
	).Scan(&ev.ID, &ev.ReceivedAt)
}

// MarkProcessed flips the processed flag. A non-empty errorMessage records a
// correlation miss without un-flagging the event; such rows surface through
// FindUnprocessed-style operator tooling via the statistics query.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id int64, errorMessage string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE webhook_events SET processed=TRUE, error_message=$1 WHERE id=$2`,
		errorMessage, id,
	)
	return err
}

// LinkAudience back-references the campaign and audience row an event was
// correlated to.
func (r *WebhookEventRepository) LinkAudience(ctx context.Context, id, campaignID, audienceID int64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE webhook_events SET campaign_id=$1, campaign_audience_id=$2 WHERE id=$3`,
		campaignID, audienceID, id,
	)
	return err
}

func (r *WebhookEventRepository) FindUnprocessed(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + `
        FROM webhook_events
        WHERE processed = FALSE
        ORDER BY received_at
        LIMIT $1`
	return r.queryEvents(ctx, query, limit)
}

func (r *WebhookEventRepository) FindByOrganization(ctx context.Context, orgID int64, offset, limit int) ([]*model.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + `
        FROM webhook_events
        WHERE organization_id=$1
        ORDER BY received_at DESC
        LIMIT $2 OFFSET $3`
	return r.queryEvents(ctx, query, orgID, limit, offset)
}

// GetStatistics returns per-type event counts plus unprocessed and
// correlation-error totals for operator monitoring.
func (r *WebhookEventRepository) GetStatistics(ctx context.Context, orgID int64) (map[string]int, error) {
	stats := map[string]int{}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM webhook_events WHERE organization_id=$1 GROUP BY event_type`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats[eventType] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["total"] = total

	var unprocessed, errored int
	err = r.DB.QueryRowContext(ctx, `
        SELECT
            COUNT(*) FILTER (WHERE processed = FALSE),
            COUNT(*) FILTER (WHERE error_message <> '')
        FROM webhook_events WHERE organization_id=$1`,
		orgID,
	).Scan(&unprocessed, &errored)
	if err != nil {
		return nil, err
	}
	stats["unprocessed"] = unprocessed
	stats["correlation_errors"] = errored
	return stats, nil
}

func (r *WebhookEventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*model.WebhookEvent, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WebhookEvent
	for rows.Next() {
		ev, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

var _ WebhookEventRepositoryInterface = (*WebhookEventRepository)(nil)
