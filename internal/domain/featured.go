package domain

// FeaturedType определяет, какое правило выбрало карточку.
type FeaturedType string

const (
	FeaturedOnboarding      FeaturedType = "onboarding"
	FeaturedUrgentSurvey    FeaturedType = "urgent_survey"
	FeaturedUpcomingEvent   FeaturedType = "upcoming_event"
	FeaturedNewSurvey       FeaturedType = "new_survey"
	FeaturedNewEvent        FeaturedType = "new_event"
	FeaturedImportantUpdate FeaturedType = "important_update"
	FeaturedWelcomeBack     FeaturedType = "welcome_back"
	FeaturedDefault         FeaturedType = "default"
)

// Variant — подсказка для отображения карточки.
type Variant string

const (
	VariantDefault   Variant = "default"
	VariantInfo      Variant = "info"
	VariantWarning   Variant = "warning"
	VariantSuccess   Variant = "success"
	VariantImportant Variant = "important"
)

// FeaturedContent — единственная рекомендованная карточка на дашборде.
type FeaturedContent struct {
	Type            FeaturedType `json:"type"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	PrimaryAction   string       `json:"primaryAction"`
	PrimaryLink     string       `json:"primaryLink"`
	SecondaryAction string       `json:"secondaryAction,omitempty"`
	SecondaryLink   string       `json:"secondaryLink,omitempty"`
	Icon            string       `json:"icon"`
	Variant         Variant      `json:"variant"`
	Progress        *int         `json:"progress,omitempty"`
}
