package daemon

import (
	"errors"
	"net/http"

	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/judge"
	"github.com/felixgeelhaar/skillforge/internal/llm"
)

type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// statusFor maps a service error to an HTTP status and a public message
func statusFor(err error) (int, string) {
	var hybrid *llm.HybridError
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyCode),
		errors.Is(err, domain.ErrNoTestCases):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, judge.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "unsupported language"

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrContentNotFound),
		errors.Is(err, domain.ErrSubmissionNotFound),
		errors.Is(err, domain.ErrProgressNotFound),
		errors.Is(err, analytics.ErrUnknownUser):
		return http.StatusNotFound, "not found"

	// a hybrid failure is a gateway error whatever its causes
	case errors.As(err, &hybrid):
		return http.StatusBadGateway, "content providers unavailable"
	case errors.Is(err, judge.ErrJudgeUnavailable):
		return http.StatusServiceUnavailable, "judge unavailable"
	case errors.Is(err, llm.ErrNotConfigured),
		errors.Is(err, llm.ErrRouterNotInitialized):
		return http.StatusServiceUnavailable, "content provider not configured"

	case errors.Is(err, llm.ErrProviderExhausted),
		errors.Is(err, llm.ErrRateLimited):
		return http.StatusBadGateway, "content providers unavailable"
	case errors.Is(err, llm.ErrMalformedResponse),
		errors.Is(err, domain.ErrInvalidContent):
		return http.StatusBadGateway, "content provider returned an unusable document"
	case errors.Is(err, judge.ErrJudgeFailed):
		return http.StatusBadGateway, "judge request failed"
	}
	return http.StatusInternalServerError, "internal error"
}
