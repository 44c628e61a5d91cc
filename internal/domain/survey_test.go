package domain

import (
	"math"
	"testing"
)

func TestDeriveSurveyStatus(t *testing.T) {
	cases := []struct {
		name     string
		response *SurveyResponse
		total    int
		status   SurveyUserStatus
		progress int
	}{
		{name: "нет ответа", response: nil, total: 5, status: SurveyNotStarted, progress: 0},
		{name: "начат", response: &SurveyResponse{AnsweredCount: 2}, total: 3, status: SurveyInProgress, progress: 67},
		{name: "завершён", response: &SurveyResponse{IsComplete: true, AnsweredCount: 3}, total: 3, status: SurveyCompleted, progress: 100},
		{name: "без вопросов", response: &SurveyResponse{AnsweredCount: 1}, total: 0, status: SurveyInProgress, progress: 0},
		{name: "ответов больше вопросов", response: &SurveyResponse{AnsweredCount: 7}, total: 5, status: SurveyInProgress, progress: 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, progress := DeriveSurveyStatus(tc.response, tc.total)
			if status != tc.status || progress != tc.progress {
				t.Fatalf("ожидали %s/%d, получили %s/%d", tc.status, tc.progress, status, progress)
			}
		})
	}
}

func TestClampProgress(t *testing.T) {
	cases := map[float64]int{-3: 0, 0: 0, 49.5: 50, 83.33: 83, 100: 100, 250: 100}
	for input, expected := range cases {
		if got := ClampProgress(input); got != expected {
			t.Fatalf("ClampProgress(%v): ожидали %d, получили %d", input, expected, got)
		}
	}
	if got := ClampProgress(math.NaN()); got != 0 {
		t.Fatalf("NaN должен давать 0, получили %d", got)
	}
}
