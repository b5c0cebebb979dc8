package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const appSettingColumns = `id, default_branch_id, notification_email, enable_order_sound, minimum_order_amount,
    currency, company_name, updated_at`

func scanAppSetting(row interface{ Scan(...interface{}) error }) (AppSetting, error) {
	var i AppSetting
	err := row.Scan(
		&i.ID,
		&i.DefaultBranchID,
		&i.NotificationEmail,
		&i.EnableOrderSound,
		&i.MinimumOrderAmount,
		&i.Currency,
		&i.CompanyName,
		&i.UpdatedAt,
	)
	return i, err
}

const ensureAppSettings = `-- name: EnsureAppSettings :exec
INSERT INTO app_settings (id) VALUES (1)
ON CONFLICT (id) DO NOTHING`

func (q *Queries) EnsureAppSettings(ctx context.Context) error {
	_, err := q.db.Exec(ctx, ensureAppSettings)
	return err
}

const getAppSettings = `-- name: GetAppSettings :one
SELECT ` + appSettingColumns + ` FROM app_settings
WHERE id = 1`

func (q *Queries) GetAppSettings(ctx context.Context) (AppSetting, error) {
	row := q.db.QueryRow(ctx, getAppSettings)
	return scanAppSetting(row)
}

const updateAppSettings = `-- name: UpdateAppSettings :one
UPDATE app_settings
SET default_branch_id = $1, notification_email = $2, enable_order_sound = $3,
    minimum_order_amount = $4, currency = $5, company_name = $6, updated_at = now()
WHERE id = 1
RETURNING ` + appSettingColumns

type UpdateAppSettingsParams struct {
	DefaultBranchID    pgtype.UUID    `json:"default_branch_id"`
	NotificationEmail  pgtype.Text    `json:"notification_email"`
	EnableOrderSound   bool           `json:"enable_order_sound"`
	MinimumOrderAmount pgtype.Numeric `json:"minimum_order_amount"`
	Currency           string         `json:"currency"`
	CompanyName        pgtype.Text    `json:"company_name"`
}

func (q *Queries) UpdateAppSettings(ctx context.Context, arg UpdateAppSettingsParams) (AppSetting, error) {
	row := q.db.QueryRow(ctx, updateAppSettings,
		arg.DefaultBranchID,
		arg.NotificationEmail,
		arg.EnableOrderSound,
		arg.MinimumOrderAmount,
		arg.Currency,
		arg.CompanyName,
	)
	return scanAppSetting(row)
}
