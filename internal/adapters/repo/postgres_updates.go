package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"member-portal/internal/domain"
	"member-portal/internal/infra/metrics"
)

// ListCompulsoryUpdates возвращает опубликованные обязательные объявления, новые первыми.
func (p *Postgres) ListCompulsoryUpdates(ctx context.Context) ([]domain.Update, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, COALESCE(content,''), update_type, status, created_at
FROM updates
WHERE status=$1 AND update_type=$2
ORDER BY created_at DESC
`, domain.StatusPublished, string(domain.UpdateTypeCompulsory))
	metrics.ObserveNetworkRequest("postgres", "updates_list_compulsory", "updates", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var updates []domain.Update
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// CountUpdatesSince считает опубликованные объявления, созданные после since.
func (p *Postgres) CountUpdatesSince(ctx context.Context, since time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM updates WHERE status=$1 AND created_at > $2`, domain.StatusPublished, since).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "updates_count_since", "updates", start, err)
	return count, err
}

// GetPublishedUpdate возвращает опубликованное объявление или domain.ErrNotFound.
func (p *Postgres) GetPublishedUpdate(ctx context.Context, id uuid.UUID) (domain.Update, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, title, COALESCE(content,''), update_type, status, created_at
FROM updates WHERE id=$1 AND status=$2
`, id.String(), domain.StatusPublished)
	u, err := scanUpdate(row)
	metrics.ObserveNetworkRequest("postgres", "updates_get", "updates", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Update{}, domain.ErrNotFound
	}
	return u, err
}

func scanUpdate(row pgx.Row) (domain.Update, error) {
	var (
		u    domain.Update
		kind string
	)
	if err := row.Scan(&u.ID, &u.Title, &u.Content, &kind, &u.Status, &u.CreatedAt); err != nil {
		return domain.Update{}, err
	}
	u.UpdateType = domain.UpdateType(kind)
	return u, nil
}

// ListAcknowledgedUpdateIDs возвращает идентификаторы подтверждённых пользователем объявлений.
func (p *Postgres) ListAcknowledgedUpdateIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT update_id FROM update_acknowledgments WHERE user_id=$1`, userID.String())
	metrics.ObserveNetworkRequest("postgres", "update_acknowledgments_list", "update_acknowledgments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveAcknowledgment сохраняет подтверждение. Повторное подтверждение не изменяет исходную запись.
func (p *Postgres) SaveAcknowledgment(ctx context.Context, ack domain.UpdateAcknowledgment) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	at := ack.AcknowledgedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO update_acknowledgments (update_id, user_id, acknowledged_at)
VALUES ($1, $2, $3)
ON CONFLICT (update_id, user_id) DO NOTHING
`, ack.UpdateID.String(), ack.UserID.String(), at)
	metrics.ObserveNetworkRequest("postgres", "update_acknowledgments_insert", "update_acknowledgments", start, err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.ErrNotFound
	}
	return err
}

// SaveContactMessage сохраняет обращение и возвращает его с присвоенным идентификатором.
func (p *Postgres) SaveContactMessage(ctx context.Context, msg domain.ContactMessage) (domain.ContactMessage, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var userID any
	if msg.UserID != nil {
		userID = msg.UserID.String()
	}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO contact_messages (user_id, name, email, company, subject, message)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6)
RETURNING id, created_at
`, userID, msg.Name, msg.Email, msg.Company, msg.Subject, msg.Message).Scan(&msg.ID, &msg.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "contact_messages_insert", "contact_messages", start, err)
	if err != nil {
		return domain.ContactMessage{}, err
	}
	return msg, nil
}

// GetTemplate возвращает шаблон письма по ключу.
func (p *Postgres) GetTemplate(ctx context.Context, key string) (domain.EmailTemplate, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var tpl domain.EmailTemplate
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT key, subject, body, updated_at FROM email_templates WHERE key=$1`, key).
		Scan(&tpl.Key, &tpl.Subject, &tpl.Body, &tpl.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "email_templates_get", "email_templates", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EmailTemplate{}, domain.ErrNotFound
	}
	return tpl, err
}

// EnsureEmailJob регистрирует попытку обработки задачи отправки письма.
func (p *Postgres) EnsureEmailJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		closedAt sql.NullTime
		attempts int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO email_job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = email_job_statuses.attempts + 1,
        updated_at = now()
RETURNING closed_at, attempts
`, jobID).Scan(&closedAt, &attempts)
	metrics.ObserveNetworkRequest("postgres", "email_job_statuses_upsert", "email_job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return closedAt.Valid, attempts, nil
}

// CloseEmailJob закрывает задачу с итогом. Повторное закрытие не меняет первый итог.
func (p *Postgres) CloseEmailJob(ctx context.Context, jobID string, result domain.EmailJobResult) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE email_job_statuses
SET result = COALESCE(result, $2),
    closed_at = COALESCE(closed_at, now()),
    sent_at = CASE WHEN result IS NULL AND $2 = 'sent' THEN now() ELSE sent_at END,
    updated_at = now()
WHERE job_id = $1
`, jobID, string(result))
	metrics.ObserveNetworkRequest("postgres", "email_job_statuses_close", "email_job_statuses", start, err)
	return err
}
