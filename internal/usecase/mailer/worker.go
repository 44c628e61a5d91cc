package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"member-portal/internal/adapters/emailfn"
	"member-portal/internal/domain"
)

// MaxDeliveryAttempts — после стольких неудачных попыток задача закрывается без доставки.
const MaxDeliveryAttempts = 5

// Worker читает задачи из очереди и отправляет письма.
type Worker struct {
	log      zerolog.Logger
	queue    domain.EmailQueue
	statuses domain.EmailJobStatusRepo
	sender   domain.EmailSender
	pause    time.Duration
}

// NewWorker создаёт обработчик очереди писем.
func NewWorker(queue domain.EmailQueue, statuses domain.EmailJobStatusRepo, sender domain.EmailSender, logger zerolog.Logger) *Worker {
	return &Worker{
		log:      logger.With().Str("component", "mailer").Logger(),
		queue:    queue,
		statuses: statuses,
		sender:   sender,
		pause:    time.Second,
	}
}

// Run обрабатывает очередь до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("mailer: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.process(ctx, job, ack)
	}
}

func (w *Worker) process(ctx context.Context, job domain.EmailJob, ack domain.EmailAckFunc) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("cause", string(job.Cause)).
		Logger()

	if job.ID == "" {
		jobLog.Error().Msg("mailer: получена задача без идентификатора, подтверждаем и пропускаем")
		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("mailer: не удалось подтвердить задачу без идентификатора")
		}
		return
	}

	closed, attempt, err := w.statuses.EnsureEmailJob(ctx, job.ID)
	if err != nil {
		jobLog.Error().Err(err).Msg("mailer: не удалось зарегистрировать задачу")
		if ackErr := ack(false); ackErr != nil {
			jobLog.Error().Err(ackErr).Msg("mailer: не удалось вернуть задачу в очередь")
		}
		w.sleep(ctx)
		return
	}
	jobLog = jobLog.With().Int("attempt", attempt).Logger()

	if closed {
		jobLog.Info().Msg("mailer: задача уже закрыта, подтверждаем")
		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("mailer: не удалось подтвердить закрытую задачу")
		}
		return
	}

	result, retry := w.send(ctx, job, jobLog)
	if retry && attempt < MaxDeliveryAttempts {
		jobLog.Warn().Msg("mailer: отправка не удалась, повторим позже")
		if err := ack(false); err != nil {
			jobLog.Error().Err(err).Msg("mailer: не удалось вернуть задачу после ошибки")
		}
		return
	}
	if retry {
		jobLog.Error().Msg("mailer: достигнут предел попыток, закрываем задачу")
		result = domain.EmailJobExhausted
	}

	if err := w.statuses.CloseEmailJob(ctx, job.ID, result); err != nil {
		jobLog.Error().Err(err).Msg("mailer: не удалось обновить статус задачи")
		if ackErr := ack(false); ackErr != nil {
			jobLog.Error().Err(ackErr).Msg("mailer: не удалось вернуть задачу после ошибки статуса")
		}
		w.sleep(ctx)
		return
	}
	if err := ack(true); err != nil {
		jobLog.Error().Err(err).Msg("mailer: не удалось подтвердить задачу")
	}
}

// send возвращает итог отправки и признак того, что попытку стоит повторить.
func (w *Worker) send(ctx context.Context, job domain.EmailJob, jobLog zerolog.Logger) (domain.EmailJobResult, bool) {
	err := w.sender.Send(ctx, job.Email)
	switch {
	case err == nil:
		jobLog.Info().Str("to", job.Email.To).Msg("mailer: письмо отправлено")
		return domain.EmailJobSent, false
	case errors.Is(err, emailfn.ErrRejected):
		jobLog.Error().Err(err).Msg("mailer: письмо отклонено, повтор не нужен")
		return domain.EmailJobRejected, false
	default:
		jobLog.Warn().Err(err).Msg("mailer: ошибка отправки")
		return "", true
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pause):
	}
}
