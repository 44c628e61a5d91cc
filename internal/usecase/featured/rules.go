package featured

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"member-portal/internal/domain"
)

const (
	onboardingThreshold   = 80
	onboardingMaxAge      = 30 * day
	urgentSurveyMaxDays   = 3
	upcomingEventMaxDays  = 7
	newSurveyWindow       = 3 * day
	newEventWindow        = 7 * day
	welcomeBackAfter      = 14 * day
	completenessFieldsMax = 6
)

// rule — пара «условие + построение карточки». Порядок в таблице задаёт приоритет.
type rule struct {
	kind  domain.FeaturedType
	match func(ctx context.Context, s *snapshot) (bool, error)
	build func(s *snapshot) domain.FeaturedContent
}

func defaultRules() []rule {
	return []rule{
		{kind: domain.FeaturedOnboarding, match: matchOnboarding, build: buildOnboarding},
		{kind: domain.FeaturedUrgentSurvey, match: matchUrgentSurvey, build: buildUrgentSurvey},
		{kind: domain.FeaturedUpcomingEvent, match: matchUpcomingEvent, build: buildUpcomingEvent},
		{kind: domain.FeaturedNewSurvey, match: matchNewSurvey, build: buildNewSurvey},
		{kind: domain.FeaturedNewEvent, match: matchNewEvent, build: buildNewEvent},
		{kind: domain.FeaturedImportantUpdate, match: matchImportantUpdate, build: buildImportantUpdate},
		{kind: domain.FeaturedWelcomeBack, match: matchWelcomeBack, build: buildWelcomeBack},
		{kind: domain.FeaturedDefault, match: func(context.Context, *snapshot) (bool, error) { return true, nil }, build: func(*snapshot) domain.FeaturedContent { return DefaultContent() }},
	}
}

// FilledProfileFields считает непустые поля из набора имя, фамилия, телефон, должность, отдел.
func FilledProfileFields(p domain.UserProfile) int {
	filled := 0
	for _, v := range []string{p.FirstName, p.LastName, p.Phone, p.Title, p.Department} {
		if strings.TrimSpace(v) != "" {
			filled++
		}
	}
	return filled
}

// CompletenessScore — процент заполненности профиля с учётом наличия компании.
func CompletenessScore(p domain.UserProfile, hasBusiness bool) int {
	points := FilledProfileFields(p)
	if hasBusiness {
		points++
	}
	return domain.ClampProgress(float64(points) / completenessFieldsMax * 100)
}

func matchOnboarding(ctx context.Context, s *snapshot) (bool, error) {
	if s.opts.SkipProfileCompletion {
		return false, nil
	}
	if s.now.Sub(s.profile.CreatedAt) >= onboardingMaxAge {
		return false, nil
	}
	// пять заполненных полей дают минимум 83%, компания уже ничего не меняет
	if FilledProfileFields(s.profile) == 5 {
		return false, nil
	}
	hasBusiness, err := s.hasBusiness(ctx)
	if err != nil {
		return false, err
	}
	s.completeness = CompletenessScore(s.profile, hasBusiness)
	return s.completeness < onboardingThreshold, nil
}

func buildOnboarding(s *snapshot) domain.FeaturedContent {
	progress := s.completeness
	return domain.FeaturedContent{
		Type:          domain.FeaturedOnboarding,
		Title:         "Complete Your Profile",
		Description:   fmt.Sprintf("Your profile is %d%% complete. Finish setting it up to get the most out of the portal.", progress),
		PrimaryAction: "Complete Profile",
		PrimaryLink:   "/profile/edit",
		Icon:          "user-circle",
		Variant:       domain.VariantInfo,
		Progress:      &progress,
	}
}

func matchUrgentSurvey(ctx context.Context, s *snapshot) (bool, error) {
	statuses, err := s.surveyStatuses(ctx)
	if err != nil {
		return false, err
	}
	candidates := make([]domain.SurveyStatus, 0, len(statuses))
	for _, st := range statuses {
		if st.UserStatus == domain.SurveyCompleted || st.DueDate == nil {
			continue
		}
		candidates = append(candidates, st)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DueDate.Before(*candidates[j].DueDate)
	})
	for _, st := range candidates {
		days := daysUntil(s.now, *st.DueDate)
		if days > 0 && days <= urgentSurveyMaxDays {
			s.urgentSurvey = st
			s.urgentDays = days
			return true, nil
		}
	}
	return false, nil
}

func buildUrgentSurvey(s *snapshot) domain.FeaturedContent {
	st := s.urgentSurvey
	content := domain.FeaturedContent{
		Type:          domain.FeaturedUrgentSurvey,
		Title:         "Survey Closing Soon!",
		Description:   fmt.Sprintf("\"%s\" closes in %s.", st.Title, pluralize(s.urgentDays, "day", "days")),
		PrimaryAction: "Take Survey",
		PrimaryLink:   "/surveys/" + st.SurveyID.String(),
		Icon:          "clipboard-list",
		Variant:       domain.VariantWarning,
	}
	if st.UserStatus == domain.SurveyInProgress {
		progress := domain.ClampProgress(float64(st.ProgressPercentage))
		content.Description += fmt.Sprintf(" You're %d%% done, finish it before it closes.", progress)
		content.PrimaryAction = "Continue Survey"
		content.Progress = &progress
	}
	return content
}

func matchUpcomingEvent(ctx context.Context, s *snapshot) (bool, error) {
	regs, err := s.registrations(ctx)
	if err != nil {
		return false, err
	}
	ids := make([]uuid.UUID, 0, len(regs))
	for _, reg := range regs {
		if reg.AttendanceStatus == domain.AttendanceRegistered {
			ids = append(ids, reg.EventID)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}
	events, err := s.eventsByIDs(ctx, ids)
	if err != nil {
		return false, err
	}
	var (
		soonest domain.Event
		found   bool
	)
	for _, ev := range events {
		if ev.StartDatetime.Before(s.now) {
			continue
		}
		if !found || ev.StartDatetime.Before(soonest.StartDatetime) {
			soonest = ev
			found = true
		}
	}
	if !found {
		return false, nil
	}
	days := daysUntil(s.now, soonest.StartDatetime)
	if days > upcomingEventMaxDays {
		return false, nil
	}
	s.upcomingEvent = soonest
	s.upcomingDays = days
	return true, nil
}

func buildUpcomingEvent(s *snapshot) domain.FeaturedContent {
	ev := s.upcomingEvent
	title := "Event Today!"
	if s.upcomingDays > 0 {
		title = "Event in " + pluralize(s.upcomingDays, "day", "days")
	}
	return domain.FeaturedContent{
		Type:            domain.FeaturedUpcomingEvent,
		Title:           title,
		Description:     fmt.Sprintf("%s starts %s.", ev.Title, ev.StartDatetime.Format("Monday, January 2 at 3:04 PM MST")),
		PrimaryAction:   "View Event",
		PrimaryLink:     "/events/" + ev.ID.String(),
		SecondaryAction: "My Events",
		SecondaryLink:   "/events",
		Icon:            "calendar",
		Variant:         domain.VariantSuccess,
	}
}

func matchNewSurvey(ctx context.Context, s *snapshot) (bool, error) {
	statuses, err := s.surveyStatuses(ctx)
	if err != nil {
		return false, err
	}
	since := s.now.Add(-newSurveyWindow)
	recent := make([]domain.SurveyStatus, 0, len(statuses))
	for _, st := range statuses {
		if st.PublishedAt == nil || st.PublishedAt.Before(since) || st.PublishedAt.After(s.now) {
			continue
		}
		recent = append(recent, st)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].PublishedAt.After(*recent[j].PublishedAt)
	})
	for _, st := range recent {
		if st.UserStatus != domain.SurveyCompleted {
			s.newSurvey = st
			return true, nil
		}
	}
	return false, nil
}

func buildNewSurvey(s *snapshot) domain.FeaturedContent {
	st := s.newSurvey
	description := fmt.Sprintf("\"%s\" was just published. Share your perspective with the community.", st.Title)
	if d := strings.TrimSpace(st.Description); d != "" {
		description = fmt.Sprintf("\"%s\" was just published. %s", st.Title, d)
	}
	return domain.FeaturedContent{
		Type:            domain.FeaturedNewSurvey,
		Title:           "New Survey Available",
		Description:     description,
		PrimaryAction:   "Take Survey",
		PrimaryLink:     "/surveys/" + st.SurveyID.String(),
		SecondaryAction: "All Surveys",
		SecondaryLink:   "/surveys",
		Icon:            "sparkles",
		Variant:         domain.VariantDefault,
	}
}

func matchNewEvent(ctx context.Context, s *snapshot) (bool, error) {
	since := s.now.Add(-newEventWindow)
	events, err := s.openEvents(ctx, since)
	if err != nil {
		return false, err
	}
	var (
		latest domain.Event
		found  bool
	)
	for _, ev := range events {
		if !ev.RegistrationOpen || ev.PublishedAt == nil || ev.PublishedAt.Before(since) || !ev.StartDatetime.After(s.now) {
			continue
		}
		if !found || ev.PublishedAt.After(*latest.PublishedAt) {
			latest = ev
			found = true
		}
	}
	if !found {
		return false, nil
	}
	s.newEvent = latest
	return true, nil
}

func buildNewEvent(s *snapshot) domain.FeaturedContent {
	ev := s.newEvent
	return domain.FeaturedContent{
		Type:            domain.FeaturedNewEvent,
		Title:           "Registration Now Open",
		Description:     fmt.Sprintf("%s on %s. Reserve your spot today.", ev.Title, ev.StartDatetime.Format("January 2, 2006")),
		PrimaryAction:   "Register",
		PrimaryLink:     "/events/" + ev.ID.String(),
		SecondaryAction: "All Events",
		SecondaryLink:   "/events",
		Icon:            "calendar-plus",
		Variant:         domain.VariantDefault,
	}
}

func matchImportantUpdate(ctx context.Context, s *snapshot) (bool, error) {
	updates, err := s.compulsoryUpdates(ctx)
	if err != nil {
		return false, err
	}
	pending := make([]domain.Update, 0, len(updates))
	for _, u := range updates {
		if u.UpdateType == domain.UpdateTypeCompulsory && u.Status == domain.StatusPublished {
			pending = append(pending, u)
		}
	}
	if len(pending) == 0 {
		return false, nil
	}
	acked, err := s.acknowledged(ctx)
	if err != nil {
		return false, err
	}
	var (
		latest domain.Update
		found  bool
	)
	for _, u := range pending {
		if _, ok := acked[u.ID]; ok {
			continue
		}
		if !found || u.CreatedAt.After(latest.CreatedAt) {
			latest = u
			found = true
		}
	}
	if !found {
		return false, nil
	}
	s.update = latest
	return true, nil
}

func buildImportantUpdate(s *snapshot) domain.FeaturedContent {
	return domain.FeaturedContent{
		Type:          domain.FeaturedImportantUpdate,
		Title:         "Important Update Required",
		Description:   fmt.Sprintf("Please review and acknowledge: %s", s.update.Title),
		PrimaryAction: "Review Update",
		PrimaryLink:   "/updates/" + s.update.ID.String(),
		Icon:          "alert-triangle",
		Variant:       domain.VariantImportant,
	}
}

func matchWelcomeBack(ctx context.Context, s *snapshot) (bool, error) {
	if s.profile.LastLogin == nil {
		return false, nil
	}
	lastLogin := *s.profile.LastLogin
	away := s.now.Sub(lastLogin)
	if away <= welcomeBackAfter {
		return false, nil
	}
	count, err := s.updatesSince(ctx, lastLogin)
	if err != nil {
		return false, err
	}
	if count < 1 {
		return false, nil
	}
	s.newUpdates = count
	s.daysAway = int(away / day)
	return true, nil
}

func buildWelcomeBack(s *snapshot) domain.FeaturedContent {
	return domain.FeaturedContent{
		Type:          domain.FeaturedWelcomeBack,
		Title:         "Welcome Back!",
		Description:   fmt.Sprintf("You have %s since your last visit %d days ago.", pluralize(s.newUpdates, "new update", "new updates"), s.daysAway),
		PrimaryAction: "See What's New",
		PrimaryLink:   "/updates",
		Icon:          "hand-wave",
		Variant:       domain.VariantInfo,
	}
}

// DefaultContent — карточка, которая показывается, если ни одно правило не сработало.
func DefaultContent() domain.FeaturedContent {
	return domain.FeaturedContent{
		Type:            domain.FeaturedDefault,
		Title:           "Welcome to the Member Portal",
		Description:     "Explore your dashboard to keep up with surveys, events and member updates.",
		PrimaryAction:   "Go to Dashboard",
		PrimaryLink:     "/dashboard",
		SecondaryAction: "Explore Solutions",
		SecondaryLink:   "/solutions",
		Icon:            "home",
		Variant:         domain.VariantDefault,
	}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
