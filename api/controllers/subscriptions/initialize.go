package subscriptions

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/bioshop-backend/api/responses"
	"github.com/angelmondragon/bioshop-backend/api/validators"
	subsvc "github.com/angelmondragon/bioshop-backend/internal/subscriptions"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
)

type initializeRequest struct {
	ProfileID string `json:"profileId" validate:"notblank"`
	Email     string `json:"email" validate:"required,email"`
}

type initializationRecorder interface {
	IncInitialization(result string)
}

// InitializeSubscription starts a hosted Paystack checkout for a profile.
func InitializeSubscription(svc subsvc.Service, rec initializationRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		var payload initializeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			observe(rec, "invalid")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Initialize(r.Context(), subsvc.InitializeInput{
			ProfileID: strings.TrimSpace(payload.ProfileID),
			Email:     strings.TrimSpace(payload.Email),
			Origin:    r.Header.Get("Origin"),
		})
		if err != nil {
			observe(rec, resultLabel(err))
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		observe(rec, "success")
		responses.WriteJSON(w, result)
	}
}

func resultLabel(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation:
		return "invalid"
	case pkgerrors.CodeProvider:
		return "provider_error"
	case pkgerrors.CodeConfiguration:
		return "misconfigured"
	default:
		return "error"
	}
}

func observe(rec initializationRecorder, result string) {
	if rec != nil {
		rec.IncInitialization(result)
	}
}
