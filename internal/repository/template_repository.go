package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
	"github.com/waflowhq/waflow-backend/internal/model"
)

// TemplateRepositoryInterface is the read-only template lookup collaborator.
type TemplateRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Template, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*model.Template, error) {
	query := `
        SELECT id, organization_id, name, language, category, status, kind,
               body_text, media_url, caption, components, parameter_mapping,
               created_at, updated_at
        FROM templates
        WHERE id = $1
    `
	var t model.Template
	var components model.RawJSON
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.OrganizationID, &t.Name, &t.Language, &t.Category, &t.Status, &t.Kind,
		&t.BodyText, &t.MediaURL, &t.Caption, &components, &t.ParameterMapping,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	if len(components) > 0 {
		if err := json.Unmarshal(components, &t.Components); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
