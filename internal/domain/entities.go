package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionUser описывает аутентифицированного пользователя из токена сессии.
type SessionUser struct {
	ID      uuid.UUID
	Email   string
	Name    string
	Company string
}

// UserProfile содержит поля профиля участника.
type UserProfile struct {
	ID         uuid.UUID
	FirstName  string
	LastName   string
	Phone      string
	Title      string
	Department string
	CreatedAt  time.Time
	LastLogin  *time.Time
}

// BusinessRecord — минимальная запись о компании пользователя, важен только факт наличия.
type BusinessRecord struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

// EventRegistration хранит регистрацию пользователя на мероприятие.
type EventRegistration struct {
	EventID          uuid.UUID
	UserID           uuid.UUID
	AttendanceStatus string
}

// AttendanceRegistered — активная регистрация на мероприятие.
const AttendanceRegistered = "registered"

// Event описывает опубликованное мероприятие.
type Event struct {
	ID               uuid.UUID
	Title            string
	Description      string
	StartDatetime    time.Time
	RegistrationOpen bool
	PublishedAt      *time.Time
}

// UpdateType описывает тип объявления.
type UpdateType string

const (
	UpdateTypeGeneral    UpdateType = "general"
	UpdateTypeCompulsory UpdateType = "compulsory"
)

// Update представляет объявление для участников.
type Update struct {
	ID         uuid.UUID
	Title      string
	Content    string
	UpdateType UpdateType
	Status     string
	CreatedAt  time.Time
}

// StatusPublished — статус опубликованного контента.
const StatusPublished = "published"

// UpdateAcknowledgment отмечает, что пользователь ознакомился с объявлением.
type UpdateAcknowledgment struct {
	UpdateID       uuid.UUID
	UserID         uuid.UUID
	AcknowledgedAt time.Time
}

// ContactMessage — обращение из контактной формы.
type ContactMessage struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	Name      string
	Email     string
	Company   string
	Subject   string
	Message   string
	CreatedAt time.Time
}

// EmailTemplate хранит шаблон письма, редактируемый в админке.
type EmailTemplate struct {
	Key       string
	Subject   string
	Body      string
	UpdatedAt time.Time
}
