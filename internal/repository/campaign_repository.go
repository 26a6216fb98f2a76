package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
	"github.com/waflowhq/waflow-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, filter CampaignFilter) ([]*model.Campaign, int, error)
	ListDue(ctx context.Context, limit int) ([]*model.Campaign, error)
	UpdateStatus(ctx context.Context, campaignID int64, status string) error
	UpdateStatusIf(ctx context.Context, campaignID int64, from []string, to string) (bool, error)
	RefreshCounters(ctx context.Context, campaignID int64) error
}

// CampaignFilter carries the optional list filters; zero values mean
// "no constraint". Filters are always parameter-bound, never concatenated
// into the query text.
type CampaignFilter struct {
	OrganizationID int64
	Status         string
	Type           string
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, organization_id, template_id, name, type, status, asset_status,
        scheduled_at, buffer_hours, auto_reply_template_id,
        total_targeted_audience, total_sent, total_delivered, total_read, total_replied, total_failed,
        created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.TemplateID, &c.Name, &c.Type, &c.Status, &c.AssetStatus,
		&c.ScheduledAt, &c.BufferHours, &c.AutoReplyTemplateID,
		&c.TotalTargeted, &c.TotalSent, &c.TotalDelivered, &c.TotalRead, &c.TotalReplied, &c.TotalFailed,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	if c.Type == "" {
		c.Type = model.CampaignTypeImmediate
	}
	if c.AssetStatus == "" {
		c.AssetStatus = model.AssetStatusNotRequired
	}
	query := `
        INSERT INTO campaigns
            (organization_id, template_id, name, type, status, asset_status, scheduled_at, buffer_hours, auto_reply_template_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query,
		c.OrganizationID, c.TemplateID, c.Name, c.Type, c.Status, c.AssetStatus,
		c.ScheduledAt, c.BufferHours, c.AutoReplyTemplateID,
	).Scan(&c.ID, &c.CreatedAt)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, err
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, filter CampaignFilter) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if filter.OrganizationID != 0 {
		where += fmt.Sprintf(" AND organization_id=$%d", argPos)
		args = append(args, filter.OrganizationID)
		argPos++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(" AND type=$%d", argPos)
		args = append(args, filter.Type)
		argPos++
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// ListDue returns dispatch-eligible campaigns: approved or ready to launch
// with their scheduled time (plus buffer) already elapsed, plus running
// campaigns, so a dispatch batch aborted mid-flight (queue outage, process
// crash) is resumed on a later tick instead of stranding its pending rows.
func (r *CampaignRepository) ListDue(ctx context.Context, limit int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status = ANY($1)
          AND (type = $2 OR scheduled_at IS NULL
               OR scheduled_at + (buffer_hours * INTERVAL '1 hour') <= NOW())
        ORDER BY scheduled_at NULLS FIRST, id
        LIMIT $3`
	eligible := []string{model.CampaignStatusApproved, model.CampaignStatusReadyToLaunch, model.CampaignStatusRunning}
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(eligible), model.CampaignTypeImmediate, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID int64, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, status, campaignID)
	return err
}

// UpdateStatusIf flips the status only when the campaign is currently in one
// of the from states. The false return means another instance already claimed
// the transition (or an operator moved the campaign), so the caller skips it.
func (r *CampaignRepository) UpdateStatusIf(ctx context.Context, campaignID int64, from []string, to string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`,
		to, campaignID, pq.Array(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RefreshCounters recomputes every delivery counter from the audience and
// incoming-message tables. Recount instead of increment keeps the counters
// correct under concurrent writers.
func (r *CampaignRepository) RefreshCounters(ctx context.Context, campaignID int64) error {
	query := `
        UPDATE campaigns SET
            total_targeted_audience = (SELECT COUNT(*) FROM campaign_audience WHERE campaign_id=$1),
            total_sent      = (SELECT COUNT(*) FROM campaign_audience WHERE campaign_id=$1 AND sent_at IS NOT NULL),
            total_delivered = (SELECT COUNT(*) FROM campaign_audience WHERE campaign_id=$1 AND delivered_at IS NOT NULL),
            total_read      = (SELECT COUNT(*) FROM campaign_audience WHERE campaign_id=$1 AND read_at IS NOT NULL),
            total_failed    = (SELECT COUNT(*) FROM campaign_audience WHERE campaign_id=$1 AND message_status='failed'),
            total_replied   = (SELECT COUNT(*) FROM incoming_messages WHERE context_campaign_id=$1),
            updated_at = NOW()
        WHERE id=$1
    `
	_, err := r.DB.ExecContext(ctx, query, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
