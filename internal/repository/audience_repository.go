package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/phone"
)

type AudienceRepositoryInterface interface {
	// Campaign audience
	BulkAdd(ctx context.Context, campaignID, orgID int64, contacts []*model.CampaignAudience) (added []*model.CampaignAudience, duplicates []string, err error)
	GetByID(ctx context.Context, id int64) (*model.CampaignAudience, error)
	FindByMessageID(ctx context.Context, messageID string) (*model.CampaignAudience, error)
	FindByCampaignAndPhone(ctx context.Context, campaignID int64, variants []string) (*model.CampaignAudience, error)
	ListDispatchable(ctx context.Context, campaignID, afterID int64, limit int) ([]*model.CampaignAudience, error)
	CountOpen(ctx context.Context, campaignID int64, maxRetries int) (int, error)
	RemoveFromCampaign(ctx context.Context, campaignID int64, msisdn string) error

	// Status transitions
	UpdateStatus(ctx context.Context, id int64, status, failureReason string) (bool, error)
	SetMessageID(ctx context.Context, id int64, messageID string) error
	ClaimRetryable(ctx context.Context, maxRetries int, failedBefore time.Time, limit int) ([]*model.CampaignAudience, error)
	ReleaseRetryClaim(ctx context.Context, ids []int64) error

	// Master directory
	UpsertMaster(ctx context.Context, m *model.AudienceMaster) error
}

type AudienceRepository struct {
	DB *sql.DB
}

const audienceColumns = `id, campaign_id, organization_id, name, msisdn, attributes,
        message_status, sent_at, delivered_at, read_at, failed_at, failure_reason,
        message_id, retry_count, asset_status, asset_url, created_at, updated_at`

func scanAudience(row interface{ Scan(...any) error }) (*model.CampaignAudience, error) {
	var a model.CampaignAudience
	err := row.Scan(
		&a.ID, &a.CampaignID, &a.OrganizationID, &a.Name, &a.MSISDN, &a.Attributes,
		&a.MessageStatus, &a.SentAt, &a.DeliveredAt, &a.ReadAt, &a.FailedAt, &a.FailureReason,
		&a.MessageID, &a.RetryCount, &a.AssetStatus, &a.AssetURL, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ====================== Campaign audience ======================

// BulkAdd inserts the given contacts into a campaign inside one transaction.
// Contacts already present in the campaign are reported back as duplicates,
// not as a transaction abort. Each inserted contact is also upserted into the
// organization's master directory, and the campaign's targeted-audience
// counter is recomputed as a full recount at the end of the batch.
func (r *AudienceRepository) BulkAdd(ctx context.Context, campaignID, orgID int64, contacts []*model.CampaignAudience) ([]*model.CampaignAudience, []string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var added []*model.CampaignAudience
	var duplicates []string

	insert := `
        INSERT INTO campaign_audience
            (campaign_id, organization_id, name, msisdn, attributes, message_status, asset_status, retry_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW())
        ON CONFLICT (campaign_id, msisdn) DO NOTHING
        RETURNING id, created_at
    `
	for _, c := range contacts {
		status := c.MessageStatus
		if status == "" {
			status = model.MessageStatusPending
		}
		assetStatus := c.AssetStatus
		if assetStatus == "" {
			assetStatus = model.AssetStatusNotRequired
		}
		err := tx.QueryRowContext(ctx, insert,
			campaignID, orgID, c.Name, c.MSISDN, c.Attributes, status, assetStatus,
		).Scan(&c.ID, &c.CreatedAt)
		if err == sql.ErrNoRows {
			duplicates = append(duplicates, c.MSISDN)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		c.CampaignID = campaignID
		c.OrganizationID = orgID
		c.MessageStatus = status
		c.AssetStatus = assetStatus

		if err := upsertMasterTx(ctx, tx, &model.AudienceMaster{
			OrganizationID: orgID,
			Name:           c.Name,
			MSISDN:         c.MSISDN,
			Attributes:     c.Attributes,
		}); err != nil {
			return nil, nil, err
		}
		added = append(added, c)
	}

	if err := recountTargetedTx(ctx, tx, campaignID); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return added, duplicates, nil
}

func (r *AudienceRepository) GetByID(ctx context.Context, id int64) (*model.CampaignAudience, error) {
	query := `SELECT ` + audienceColumns + ` FROM campaign_audience WHERE id=$1`
	a, err := scanAudience(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *AudienceRepository) FindByMessageID(ctx context.Context, messageID string) (*model.CampaignAudience, error) {
	// message_id defaults to '' until the worker records the gateway id, so
	// an empty lookup key must never match a not-yet-dispatched row.
	if messageID == "" {
		return nil, nil
	}
	query := `SELECT ` + audienceColumns + ` FROM campaign_audience WHERE message_id=$1 AND message_id <> ''`
	a, err := scanAudience(r.DB.QueryRowContext(ctx, query, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// FindByCampaignAndPhone matches a recipient by any of the phone-number
// variants (the gateway reports senders without the leading "+").
func (r *AudienceRepository) FindByCampaignAndPhone(ctx context.Context, campaignID int64, variants []string) (*model.CampaignAudience, error) {
	query := `SELECT ` + audienceColumns + `
        FROM campaign_audience
        WHERE campaign_id=$1 AND msisdn = ANY($2)
        ORDER BY id
        LIMIT 1`
	a, err := scanAudience(r.DB.QueryRowContext(ctx, query, campaignID, pq.Array(variants)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListDispatchable streams a bounded batch of rows still waiting for dispatch,
// keyed by id for stable pagination across batches.
func (r *AudienceRepository) ListDispatchable(ctx context.Context, campaignID, afterID int64, limit int) ([]*model.CampaignAudience, error) {
	query := `SELECT ` + audienceColumns + `
        FROM campaign_audience
        WHERE campaign_id=$1 AND id > $2
          AND message_status = ANY($3)
        ORDER BY id
        LIMIT $4`
	dispatchable := []string{
		model.MessageStatusPending,
		model.MessageStatusAssetGenerated,
		model.MessageStatusReadyToSend,
	}
	rows, err := r.DB.QueryContext(ctx, query, campaignID, afterID, pq.Array(dispatchable), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CampaignAudience
	for rows.Next() {
		a, err := scanAudience(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountOpen counts recipients that are not yet terminal: anything except
// delivered, read, or failed with retries exhausted.
func (r *AudienceRepository) CountOpen(ctx context.Context, campaignID int64, maxRetries int) (int, error) {
	query := `
        SELECT COUNT(*) FROM campaign_audience
        WHERE campaign_id=$1
          AND message_status NOT IN ($2, $3)
          AND NOT (message_status = $4 AND retry_count >= $5)
    `
	var n int
	err := r.DB.QueryRowContext(ctx, query, campaignID,
		model.MessageStatusDelivered, model.MessageStatusRead,
		model.MessageStatusFailed, maxRetries,
	).Scan(&n)
	return n, err
}

func (r *AudienceRepository) RemoveFromCampaign(ctx context.Context, campaignID int64, msisdn string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM campaign_audience WHERE campaign_id=$1 AND msisdn=$2`,
		campaignID, msisdn,
	); err != nil {
		return err
	}
	if err := recountTargetedTx(ctx, tx, campaignID); err != nil {
		return err
	}
	return tx.Commit()
}

// ====================== Status transitions ======================

// UpdateStatus applies a forward-only status transition and stamps the
// matching timestamp. It returns false when the row was already at or past
// the requested status, so replayed webhook events are no-ops. Transitions to
// failed are allowed from any non-terminal state and record the reason.
func (r *AudienceRepository) UpdateStatus(ctx context.Context, id int64, status, failureReason string) (bool, error) {
	var res sql.Result
	var err error

	if status == model.MessageStatusFailed {
		res, err = r.DB.ExecContext(ctx, `
            UPDATE campaign_audience
            SET message_status=$1, failure_reason=$2, failed_at=NOW(), updated_at=NOW()
            WHERE id=$3 AND message_status = ANY($4)`,
			status, failureReason, id, pq.Array(model.NonTerminalStatuses()),
		)
	} else {
		stamp := ""
		switch status {
		case model.MessageStatusSent:
			stamp = ", sent_at=NOW()"
		case model.MessageStatusDelivered:
			stamp = ", delivered_at=NOW()"
		case model.MessageStatusRead:
			stamp = ", read_at=NOW()"
		}
		res, err = r.DB.ExecContext(ctx, `
            UPDATE campaign_audience
            SET message_status=$1, updated_at=NOW()`+stamp+`
            WHERE id=$2 AND message_status = ANY($3)`,
			status, id, pq.Array(model.StatusesBelow(status)),
		)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *AudienceRepository) SetMessageID(ctx context.Context, id int64, messageID string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE campaign_audience SET message_id=$1, updated_at=NOW() WHERE id=$2`,
		messageID, id,
	)
	return err
}

// ClaimRetryable claims failed rows whose retry budget is not exhausted and
// whose failure is older than the backoff window. Rows are locked with
// FOR UPDATE SKIP LOCKED so concurrent retry passes (including other process
// instances) never double-submit the same recipient. Claimed rows are flipped
// back to pending with their retry counter bumped before the transaction
// commits.
func (r *AudienceRepository) ClaimRetryable(ctx context.Context, maxRetries int, failedBefore time.Time, limit int) ([]*model.CampaignAudience, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + audienceColumns + `
        FROM campaign_audience
        WHERE message_status=$1 AND retry_count < $2 AND failed_at <= $3
        ORDER BY failed_at
        LIMIT $4
        FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, query, model.MessageStatusFailed, maxRetries, failedBefore, limit)
	if err != nil {
		return nil, err
	}

	var claimed []*model.CampaignAudience
	for rows.Next() {
		a, err := scanAudience(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(claimed) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]int64, len(claimed))
	for i, a := range claimed {
		ids[i] = a.ID
	}
	if _, err := tx.ExecContext(ctx, `
        UPDATE campaign_audience
        SET message_status=$1, retry_count=retry_count+1, failure_reason='', updated_at=NOW()
        WHERE id = ANY($2)`,
		model.MessageStatusPending, pq.Array(ids),
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, a := range claimed {
		a.MessageStatus = model.MessageStatusPending
		a.RetryCount++
		a.FailureReason = ""
	}
	return claimed, nil
}

// ReleaseRetryClaim rolls back claimed rows whose resubmission was never
// attempted: they return to failed with the retry budget restored, keeping
// their original failed_at so the next pass claims them in the same order.
// Rows that already moved past pending are left alone.
func (r *AudienceRepository) ReleaseRetryClaim(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `
        UPDATE campaign_audience
        SET message_status=$1, retry_count=GREATEST(retry_count-1, 0), updated_at=NOW()
        WHERE id = ANY($2) AND message_status=$3`,
		model.MessageStatusFailed, pq.Array(ids), model.MessageStatusPending,
	)
	return err
}

// ====================== Master directory ======================

// UpsertMaster creates or merges a master-directory row. The attribute merge
// is a shallow union with incoming keys taking precedence, done in SQL so
// concurrent upserts of the same contact stay consistent.
func (r *AudienceRepository) UpsertMaster(ctx context.Context, m *model.AudienceMaster) error {
	return upsertMaster(ctx, r.DB, m)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertMaster(ctx context.Context, q execQuerier, m *model.AudienceMaster) error {
	if m.CountryCode == "" {
		m.CountryCode = phone.CountryCode(m.MSISDN)
	}
	query := `
        INSERT INTO audience_master (organization_id, name, msisdn, country_code, attributes, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (organization_id, msisdn) DO UPDATE
        SET name = EXCLUDED.name,
            attributes = COALESCE(audience_master.attributes, '{}'::jsonb) || COALESCE(EXCLUDED.attributes, '{}'::jsonb),
            updated_at = NOW()
        RETURNING id
    `
	return q.QueryRowContext(ctx, query,
		m.OrganizationID, m.Name, m.MSISDN, m.CountryCode, m.Attributes,
	).Scan(&m.ID)
}

func upsertMasterTx(ctx context.Context, tx *sql.Tx, m *model.AudienceMaster) error {
	return upsertMaster(ctx, tx, m)
}

func recountTargetedTx(ctx context.Context, tx *sql.Tx, campaignID int64) error {
	_, err := tx.ExecContext(ctx, `
        UPDATE campaigns
        SET total_targeted_audience = (SELECT COUNT(*) FROM campaign_audience WHERE campaign_id=$1),
            updated_at = NOW()
        WHERE id=$1`,
		campaignID,
	)
	return err
}

var _ AudienceRepositoryInterface = (*AudienceRepository)(nil)
