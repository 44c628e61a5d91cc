package domain

import (
	"context"
	"time"
)

// EmailJobCause описывает источник письма.
type EmailJobCause string

const (
	// EmailCauseContact — уведомление о новом обращении из контактной формы.
	EmailCauseContact EmailJobCause = "contact"
)

// Email — содержимое письма для внешней функции отправки.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// EmailJob содержит информацию о задаче отправки письма.
type EmailJob struct {
	ID          string        `json:"job_id,omitempty"`
	Email       Email         `json:"email"`
	RequestedAt time.Time     `json:"requested_at"`
	Cause       EmailJobCause `json:"cause"`
}

// EmailQueue описывает очередь задач на отправку писем.
type EmailQueue interface {
	Enqueue(ctx context.Context, job EmailJob) error
	Receive(ctx context.Context) (EmailJob, EmailAckFunc, error)
}

// EmailAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type EmailAckFunc func(success bool) error

// EmailJobResult — итог закрытой задачи отправки.
type EmailJobResult string

const (
	// EmailJobSent — письмо принято функцией отправки.
	EmailJobSent EmailJobResult = "sent"
	// EmailJobRejected — функция отправки окончательно отклонила письмо.
	EmailJobRejected EmailJobResult = "rejected"
	// EmailJobExhausted — исчерпаны попытки доставки.
	EmailJobExhausted EmailJobResult = "exhausted"
)

// EmailJobStatusRepo отвечает за отслеживание статуса доставки писем.
type EmailJobStatusRepo interface {
	// EnsureEmailJob регистрирует попытку обработки и возвращает признак закрытой задачи
	// и номер текущей попытки.
	EnsureEmailJob(ctx context.Context, jobID string) (closed bool, attempt int, err error)
	// CloseEmailJob закрывает задачу с итогом. Время отправки фиксируется только для EmailJobSent.
	CloseEmailJob(ctx context.Context, jobID string, result EmailJobResult) error
}
