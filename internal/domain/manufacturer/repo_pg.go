package manufacturer

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository reading the manufacturer table. Used when
// the catalog lives in Postgres instead of a YAML file.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const cols = `id, name, signature_required, supports_insurance_upload_in_ivr,
	has_order_form, fulfillment_template_ref, dispatch_email`

func scanRow(row pgx.Row) (*Config, error) {
	var m Config
	var templateRef, dispatchEmail *string
	err := row.Scan(&m.ID, &m.Name, &m.SignatureRequired, &m.SupportsInsuranceUpload,
		&m.HasOrderForm, &templateRef, &dispatchEmail)
	if err != nil {
		return nil, err
	}
	if templateRef != nil {
		m.FulfillmentTemplateRef = *templateRef
	}
	if dispatchEmail != nil {
		m.DispatchEmail = *dispatchEmail
	}
	return &m, nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Config, error) {
	return scanRow(r.pool.QueryRow(ctx, `SELECT `+cols+` FROM manufacturer WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context) ([]*Config, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cols+` FROM manufacturer ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Config
	for rows.Next() {
		m, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
