package featured

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"member-portal/internal/domain"
)

type stubSurveyRepo struct {
	rpc       []domain.SurveyStatus
	rpcErr    error
	surveys   []domain.Survey
	responses []domain.SurveyResponse
	counts    map[uuid.UUID]int
	reads     int
}

func (s *stubSurveyRepo) CallSurveyStatus(context.Context, uuid.UUID) ([]domain.SurveyStatus, error) {
	return s.rpc, s.rpcErr
}
func (s *stubSurveyRepo) ListPublishedSurveys(context.Context) ([]domain.Survey, error) {
	s.reads++
	return s.surveys, nil
}
func (s *stubSurveyRepo) ListUserResponses(context.Context, uuid.UUID) ([]domain.SurveyResponse, error) {
	s.reads++
	return s.responses, nil
}
func (s *stubSurveyRepo) CountQuestions(context.Context, []uuid.UUID) (map[uuid.UUID]int, error) {
	s.reads++
	return s.counts, nil
}

func surveyFixture() (*stubSurveyRepo, []domain.SurveyStatus) {
	due := testNow.Add(2 * day)
	published := testNow.Add(-day)
	notStarted := domain.Survey{ID: uuid.New(), Title: "A", DueDate: &due, PublishedAt: &published}
	inProgress := domain.Survey{ID: uuid.New(), Title: "B", PublishedAt: &published}
	completed := domain.Survey{ID: uuid.New(), Title: "C"}
	empty := domain.Survey{ID: uuid.New(), Title: "D"}

	repo := &stubSurveyRepo{
		surveys: []domain.Survey{notStarted, inProgress, completed, empty},
		responses: []domain.SurveyResponse{
			{SurveyID: inProgress.ID, AnsweredCount: 1},
			{SurveyID: completed.ID, IsComplete: true, AnsweredCount: 3},
		},
		counts: map[uuid.UUID]int{notStarted.ID: 4, inProgress.ID: 3, completed.ID: 3},
	}
	expected := []domain.SurveyStatus{
		{SurveyID: notStarted.ID, Title: "A", DueDate: &due, PublishedAt: &published, UserStatus: domain.SurveyNotStarted, ProgressPercentage: 0},
		{SurveyID: inProgress.ID, Title: "B", PublishedAt: &published, UserStatus: domain.SurveyInProgress, ProgressPercentage: 33},
		{SurveyID: completed.ID, Title: "C", UserStatus: domain.SurveyCompleted, ProgressPercentage: 100},
		{SurveyID: empty.ID, Title: "D", UserStatus: domain.SurveyNotStarted, ProgressPercentage: 0},
	}
	return repo, expected
}

func TestDecomposedMatchesConsolidated(t *testing.T) {
	repo, expected := surveyFixture()
	repo.rpc = expected

	consolidated, err := NewConsolidatedStatus(repo, time.Second).SurveyStatuses(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	decomposed, err := NewDecomposedStatus(repo, time.Second).SurveyStatuses(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !reflect.DeepEqual(consolidated, decomposed) {
		t.Fatalf("пути расходятся:\n%+v\n%+v", consolidated, decomposed)
	}
}

func TestConsolidatedNormalizesRows(t *testing.T) {
	repo := &stubSurveyRepo{rpc: []domain.SurveyStatus{
		{SurveyID: uuid.New(), UserStatus: "weird", ProgressPercentage: 140},
		{SurveyID: uuid.New(), UserStatus: domain.SurveyInProgress, ProgressPercentage: -5},
	}}
	out, err := NewConsolidatedStatus(repo, time.Second).SurveyStatuses(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if out[0].UserStatus != domain.SurveyNotStarted || out[0].ProgressPercentage != 100 {
		t.Fatalf("неожиданная нормализация: %+v", out[0])
	}
	if out[1].UserStatus != domain.SurveyInProgress || out[1].ProgressPercentage != 0 {
		t.Fatalf("неожиданная нормализация: %+v", out[1])
	}
}

func TestDecomposedWithoutSurveysSkipsReads(t *testing.T) {
	repo := &stubSurveyRepo{}
	out, err := NewDecomposedStatus(repo, time.Second).SurveyStatuses(context.Background(), uuid.New())
	if err != nil || len(out) != 0 {
		t.Fatalf("ожидали пустой результат без ошибки: %v %v", out, err)
	}
	if repo.reads != 1 {
		t.Fatalf("ожидали одно чтение, получили %d", repo.reads)
	}
}

func TestFallbackUsesDecomposedOnError(t *testing.T) {
	repo, expected := surveyFixture()
	repo.rpcErr = errBoom
	provider := NewFallbackStatus(NewConsolidatedStatus(repo, time.Second), NewDecomposedStatus(repo, time.Second), zerolog.Nop())

	out, err := provider.SurveyStatuses(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !reflect.DeepEqual(out, expected) {
		t.Fatalf("ожидали результат запасного пути:\n%+v", out)
	}
	if repo.reads != 3 {
		t.Fatalf("ожидали три чтения запасного пути, получили %d", repo.reads)
	}
}

func TestFallbackNotUsedOnSuccess(t *testing.T) {
	repo, expected := surveyFixture()
	repo.rpc = expected
	provider := NewFallbackStatus(NewConsolidatedStatus(repo, time.Second), NewDecomposedStatus(repo, time.Second), zerolog.Nop())
	if _, err := provider.SurveyStatuses(context.Background(), uuid.New()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if repo.reads != 0 {
		t.Fatalf("запасной путь не должен вызываться")
	}
}
