package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"member-portal/internal/domain"
	"member-portal/internal/infra/metrics"
)

const defaultSurveyStatusRPC = "get_user_survey_status"

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool      *pgxpool.Pool
	surveyRPC string
}

var (
	_ domain.ProfileRepo        = (*Postgres)(nil)
	_ domain.BusinessRepo       = (*Postgres)(nil)
	_ domain.SurveyRepo         = (*Postgres)(nil)
	_ domain.EventRepo          = (*Postgres)(nil)
	_ domain.UpdateRepo         = (*Postgres)(nil)
	_ domain.AcknowledgmentRepo = (*Postgres)(nil)
	_ domain.ContactRepo        = (*Postgres)(nil)
	_ domain.TemplateRepo       = (*Postgres)(nil)
	_ domain.EmailJobStatusRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД. surveyRPC — имя хранимой процедуры сводного статуса опросов.
func NewPostgres(pool *pgxpool.Pool, surveyRPC string) *Postgres {
	if surveyRPC == "" {
		surveyRPC = defaultSurveyStatusRPC
	}
	return &Postgres{pool: pool, surveyRPC: surveyRPC}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// GetProfile реализует domain.ProfileRepo.
func (p *Postgres) GetProfile(ctx context.Context, userID uuid.UUID) (domain.UserProfile, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		profile   domain.UserProfile
		lastLogin sql.NullTime
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(phone,''), COALESCE(title,''), COALESCE(department,''), created_at, last_login
FROM profiles WHERE id=$1
`, userID.String()).Scan(&profile.ID, &profile.FirstName, &profile.LastName, &profile.Phone, &profile.Title, &profile.Department, &profile.CreatedAt, &lastLogin)
	metrics.ObserveNetworkRequest("postgres", "profiles_get", "profiles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserProfile{}, err
	}
	if lastLogin.Valid {
		ts := lastLogin.Time
		profile.LastLogin = &ts
	}
	return profile, nil
}

// ListUserBusinesses реализует domain.BusinessRepo.
func (p *Postgres) ListUserBusinesses(ctx context.Context, userID uuid.UUID, limit int) ([]domain.BusinessRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 100
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, user_id FROM businesses WHERE user_id=$1 LIMIT $2`, userID.String(), limit)
	metrics.ObserveNetworkRequest("postgres", "businesses_list", "businesses", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.BusinessRecord
	for rows.Next() {
		var rec domain.BusinessRecord
		if err := rows.Scan(&rec.ID, &rec.UserID); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CallSurveyStatus вызывает хранимую процедуру, возвращающую статус всех опросов пользователя.
func (p *Postgres) CallSurveyStatus(ctx context.Context, userID uuid.UUID) ([]domain.SurveyStatus, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`
SELECT survey_id, title, COALESCE(description,''), due_date, published_at, user_status, progress_percentage
FROM %s($1)
`, pgx.Identifier{p.surveyRPC}.Sanitize())
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, userID.String())
	metrics.ObserveNetworkRequest("postgres", "rpc_survey_status", p.surveyRPC, start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var statuses []domain.SurveyStatus
	for rows.Next() {
		var (
			st     domain.SurveyStatus
			status string
		)
		if err := rows.Scan(&st.SurveyID, &st.Title, &st.Description, &st.DueDate, &st.PublishedAt, &status, &st.ProgressPercentage); err != nil {
			return nil, err
		}
		st.UserStatus = domain.SurveyUserStatus(status)
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// ListPublishedSurveys возвращает опубликованные опросы по возрастанию срока.
func (p *Postgres) ListPublishedSurveys(ctx context.Context) ([]domain.Survey, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, COALESCE(description,''), due_date, published_at
FROM surveys WHERE status='published'
ORDER BY due_date ASC NULLS LAST, published_at DESC
`)
	metrics.ObserveNetworkRequest("postgres", "surveys_list_published", "surveys", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var surveys []domain.Survey
	for rows.Next() {
		var s domain.Survey
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.DueDate, &s.PublishedAt); err != nil {
			return nil, err
		}
		surveys = append(surveys, s)
	}
	return surveys, rows.Err()
}

// ListUserResponses возвращает ответы пользователя с количеством отвеченных вопросов.
func (p *Postgres) ListUserResponses(ctx context.Context, userID uuid.UUID) ([]domain.SurveyResponse, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT r.survey_id, r.user_id, r.is_complete, COUNT(DISTINCT a.question_id)
FROM survey_responses r
LEFT JOIN survey_answers a ON a.response_id = r.id
WHERE r.user_id=$1
GROUP BY r.id, r.survey_id, r.user_id, r.is_complete
`, userID.String())
	metrics.ObserveNetworkRequest("postgres", "survey_responses_list", "survey_responses", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []domain.SurveyResponse
	for rows.Next() {
		var r domain.SurveyResponse
		if err := rows.Scan(&r.SurveyID, &r.UserID, &r.IsComplete, &r.AnsweredCount); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// CountQuestions возвращает количество вопросов по каждому опросу.
func (p *Postgres) CountQuestions(ctx context.Context, surveyIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(surveyIDs))
	if len(surveyIDs) == 0 {
		return counts, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT survey_id, COUNT(*) FROM survey_questions
WHERE survey_id = ANY($1::uuid[])
GROUP BY survey_id
`, uuidStrings(surveyIDs))
	metrics.ObserveNetworkRequest("postgres", "survey_questions_count", "survey_questions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    uuid.UUID
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// ListActiveRegistrations возвращает регистрации со статусом registered.
func (p *Postgres) ListActiveRegistrations(ctx context.Context, userID uuid.UUID) ([]domain.EventRegistration, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT event_id, user_id, attendance_status FROM event_registrations
WHERE user_id=$1 AND attendance_status=$2
`, userID.String(), domain.AttendanceRegistered)
	metrics.ObserveNetworkRequest("postgres", "event_registrations_list", "event_registrations", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var regs []domain.EventRegistration
	for rows.Next() {
		var reg domain.EventRegistration
		if err := rows.Scan(&reg.EventID, &reg.UserID, &reg.AttendanceStatus); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// ListEventsByIDs реализует domain.EventRepo.
func (p *Postgres) ListEventsByIDs(ctx context.Context, ids []uuid.UUID, startsFrom time.Time) ([]domain.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, COALESCE(description,''), start_datetime, registration_open, published_at
FROM events
WHERE id = ANY($1::uuid[]) AND status='published' AND start_datetime >= $2
ORDER BY start_datetime ASC
`, uuidStrings(ids), startsFrom)
	metrics.ObserveNetworkRequest("postgres", "events_list_by_ids", "events", start, err)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ListOpenEventsPublishedSince реализует domain.EventRepo.
func (p *Postgres) ListOpenEventsPublishedSince(ctx context.Context, since, startsAfter time.Time) ([]domain.Event, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, COALESCE(description,''), start_datetime, registration_open, published_at
FROM events
WHERE status='published' AND registration_open AND published_at >= $1 AND start_datetime > $2
ORDER BY published_at DESC
`, since, startsAfter)
	metrics.ObserveNetworkRequest("postgres", "events_list_open", "events", start, err)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.StartDatetime, &ev.RegistrationOpen, &ev.PublishedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
