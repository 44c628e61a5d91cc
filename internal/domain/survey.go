package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SurveyUserStatus описывает прогресс пользователя по опросу.
type SurveyUserStatus string

const (
	SurveyNotStarted SurveyUserStatus = "not_started"
	SurveyInProgress SurveyUserStatus = "in_progress"
	SurveyCompleted  SurveyUserStatus = "completed"
)

// Survey — опубликованный опрос.
type Survey struct {
	ID          uuid.UUID
	Title       string
	Description string
	DueDate     *time.Time
	PublishedAt *time.Time
}

// SurveyResponse — ответ пользователя на опрос. AnsweredCount содержит число отвеченных вопросов.
type SurveyResponse struct {
	SurveyID      uuid.UUID
	UserID        uuid.UUID
	IsComplete    bool
	AnsweredCount int
}

// SurveyStatus — сводное состояние опроса для пользователя.
type SurveyStatus struct {
	SurveyID           uuid.UUID
	Title              string
	Description        string
	DueDate            *time.Time
	PublishedAt        *time.Time
	UserStatus         SurveyUserStatus
	ProgressPercentage int
}

// DeriveSurveyStatus вычисляет статус и процент прохождения так же, как серверная процедура.
// response может быть nil, если пользователь ещё не начинал опрос.
func DeriveSurveyStatus(response *SurveyResponse, totalQuestions int) (SurveyUserStatus, int) {
	status := SurveyNotStarted
	answered := 0
	if response != nil {
		answered = response.AnsweredCount
		if response.IsComplete {
			status = SurveyCompleted
		} else {
			status = SurveyInProgress
		}
	}
	progress := 0
	if totalQuestions > 0 {
		progress = ClampProgress(float64(answered) / float64(totalQuestions) * 100)
	}
	return status, progress
}

// ClampProgress округляет значение и ограничивает его диапазоном [0,100].
func ClampProgress(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	rounded := int(math.Round(v))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
