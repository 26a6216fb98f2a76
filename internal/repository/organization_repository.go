package repository

import (
	"context"
	"database/sql"

	"github.com/waflowhq/waflow-backend/internal/model"
)

// OrganizationRepositoryInterface is the read-only org lookup collaborator.
type OrganizationRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Organization, error)
}

type OrganizationRepository struct {
	DB *sql.DB
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*model.Organization, error) {
	query := `SELECT id, name, status, created_at FROM organizations WHERE id=$1`
	var o model.Organization
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.Name, &o.Status, &o.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

var _ OrganizationRepositoryInterface = (*OrganizationRepository)(nil)
