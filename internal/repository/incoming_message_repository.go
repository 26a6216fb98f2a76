package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/waflowhq/waflow-backend/internal/model"
)

// pqUniqueViolation is the Postgres error code for a unique-constraint hit.
const pqUniqueViolation = "23505"

type IncomingMessageRepositoryInterface interface {
	Insert(ctx context.Context, msg *model.IncomingMessage) (created bool, err error)
	GetByMessageID(ctx context.Context, messageID string) (*model.IncomingMessage, error)
	FindPendingAutoReply(ctx context.Context, limit int) ([]*model.IncomingMessage, error)
	MarkAutoReply(ctx context.Context, id int64, status string) error
	MarkProcessed(ctx context.Context, id int64) error
}

type IncomingMessageRepository struct {
	DB *sql.DB
}

const incomingColumns = `id, organization_id, message_id, from_number, to_number,
        message_type, content, media_id, media_url, interactive_data,
        context_message_id, context_campaign_id, raw_payload, processed,
        is_auto_reply, auto_reply_template_id, send_auto_reply_message,
        received_at, updated_at`

func scanIncoming(row interface{ Scan(...any) error }) (*model.IncomingMessage, error) {
	var m model.IncomingMessage
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.MessageID, &m.FromNumber, &m.ToNumber,
		&m.MessageType, &m.Content, &m.MediaID, &m.MediaURL, &m.InteractiveData,
		&m.ContextMessageID, &m.ContextCampaignID, &m.RawPayload, &m.Processed,
		&m.IsAutoReply, &m.AutoReplyTemplateID, &m.SendAutoReply,
		&m.ReceivedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert creates the inbound row, idempotent on the gateway message id. The
// gateway delivers webhooks at least once; a redelivery trips the unique
// constraint and is swallowed (created=false), not treated as an error.
func (r *IncomingMessageRepository) Insert(ctx context.Context, msg *model.IncomingMessage) (bool, error) {
	if msg.SendAutoReply == "" {
		msg.SendAutoReply = model.AutoReplyNone
	}
	query := `
        INSERT INTO incoming_messages
            (organization_id, message_id, from_number, to_number, message_type,
             content, media_id, media_url, interactive_data,
             context_message_id, context_campaign_id, raw_payload, processed,
             is_auto_reply, auto_reply_template_id, send_auto_reply_message, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, $13, $14, $15, NOW())
        RETURNING id, received_at
    `
	err := r.DB.QueryRowContext(ctx, query,
		msg.OrganizationID, msg.MessageID, msg.FromNumber, msg.ToNumber, msg.MessageType,
		msg.Content, msg.MediaID, msg.MediaURL, msg.InteractiveData,
		msg.ContextMessageID, msg.ContextCampaignID, msg.RawPayload,
		msg.IsAutoReply, msg.AutoReplyTemplateID, msg.SendAutoReply,
	).Scan(&msg.ID, &msg.ReceivedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *IncomingMessageRepository) GetByMessageID(ctx context.Context, messageID string) (*model.IncomingMessage, error) {
	query := `SELECT ` + incomingColumns + ` FROM incoming_messages WHERE message_id=$1`
	m, err := scanIncoming(r.DB.QueryRowContext(ctx, query, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// FindPendingAutoReply returns inbound messages flagged for an auto-reply
// whose reply has not been attempted yet, restricted to rows whose target
// template is approved and not itself an auto-reply-category template.
func (r *IncomingMessageRepository) FindPendingAutoReply(ctx context.Context, limit int) ([]*model.IncomingMessage, error) {
	query := `
        SELECT m.id, m.organization_id, m.message_id, m.from_number, m.to_number,
               m.message_type, m.content, m.media_id, m.media_url, m.interactive_data,
               m.context_message_id, m.context_campaign_id, m.raw_payload, m.processed,
               m.is_auto_reply, m.auto_reply_template_id, m.send_auto_reply_message,
               m.received_at, m.updated_at
        FROM incoming_messages m
        JOIN templates t ON t.id = m.auto_reply_template_id
        WHERE m.is_auto_reply = TRUE
          AND m.send_auto_reply_message = $1
          AND t.status = $2
          AND t.category <> $3
        ORDER BY m.received_at
        LIMIT $4
    `
	rows, err := r.DB.QueryContext(ctx, query,
		model.AutoReplyPending, model.TemplateStatusApproved, model.TemplateCategoryAutoReply, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.IncomingMessage
	for rows.Next() {
		m, err := scanIncoming(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *IncomingMessageRepository) MarkAutoReply(ctx context.Context, id int64, status string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE incoming_messages SET send_auto_reply_message=$1, processed=TRUE, updated_at=NOW() WHERE id=$2`,
		status, id,
	)
	return err
}

func (r *IncomingMessageRepository) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE incoming_messages SET processed=TRUE, updated_at=NOW() WHERE id=$1`,
		id,
	)
	return err
}

var _ IncomingMessageRepositoryInterface = (*IncomingMessageRepository)(nil)
