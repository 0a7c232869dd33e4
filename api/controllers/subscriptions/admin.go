package subscriptions

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bioshop-backend/api/middleware"
	"github.com/angelmondragon/bioshop-backend/api/responses"
	"github.com/angelmondragon/bioshop-backend/api/validators"
	subsvc "github.com/angelmondragon/bioshop-backend/internal/subscriptions"
	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
)

type subscriptionResponse struct {
	ID               uuid.UUID  `json:"id"`
	ProfileID        string     `json:"profile_id"`
	CustomerCode     string     `json:"customer_code"`
	SubscriptionCode *string    `json:"subscription_code"`
	PlanCode         string     `json:"plan_code"`
	Status           string     `json:"status"`
	NextPaymentDate  *time.Time `json:"next_payment_date"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type statusUpdateRequest struct {
	Status  string `json:"status" validate:"required,oneof=active inactive"`
	Version int64  `json:"version" validate:"required,min=1"`
}

func AdminSubscriptionGet(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		sub, err := svc.Get(r.Context(), chi.URLParam(r, "profileId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, newSubscriptionResponse(sub))
	}
}

func AdminSubscriptionSetStatus(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		var payload statusUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload, validators.Strict()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.SetStatus(r.Context(), chi.URLParam(r, "profileId"), subsvc.SetStatusInput{
			Status:     enums.SubscriptionStatus(payload.Status),
			Version:    payload.Version,
			OperatorID: middleware.OperatorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, newSubscriptionResponse(sub))
	}
}

// AdminSubscriptionDelete removes a subscription. An optional ?version= guards
// against deleting a row changed since it was read.
func AdminSubscriptionDelete(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		version, err := validators.OptionalPositiveInt64(r, "version")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Delete(r.Context(), chi.URLParam(r, "profileId"), subsvc.DeleteInput{
			Version:    version,
			OperatorID: middleware.OperatorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func newSubscriptionResponse(sub *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:               sub.ID,
		ProfileID:        sub.ProfileID,
		CustomerCode:     sub.CustomerCode,
		SubscriptionCode: sub.SubscriptionCode,
		PlanCode:         sub.PlanCode,
		Status:           string(sub.Status),
		NextPaymentDate:  sub.NextPaymentDate,
		Version:          sub.Version,
		CreatedAt:        sub.CreatedAt,
		UpdatedAt:        sub.UpdatedAt,
	}
}
