package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/bioshop-backend/api/responses"
	paystackwebhook "github.com/angelmondragon/bioshop-backend/internal/webhooks/paystack"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
	"github.com/angelmondragon/bioshop-backend/pkg/paystack"
	"github.com/angelmondragon/bioshop-backend/pkg/types"
)

const defaultMaxBodyBytes int64 = 1 << 20

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, body []byte) (paystackwebhook.Result, error)
}

type deliveryRecorder interface {
	IncDelivery(event, outcome string)
	IncSignatureFailure()
}

// PaystackWebhook verifies and applies Paystack deliveries. Signature failures
// answer with a plain-text 401 and touch nothing.
func PaystackWebhook(secret string, maxBodyBytes int64, svc PaystackWebhookService, rec deliveryRecorder, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "PAYSTACK_SECRET_KEY not configured"))
			return
		}
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !paystack.VerifySignature(secret, payload, r.Header.Get(paystack.SignatureHeader)) {
			if rec != nil {
				rec.IncSignatureFailure()
			}
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "remote_addr", r.RemoteAddr), "paystack.webhook.invalid_signature")
			}
			responses.WriteText(w, http.StatusUnauthorized, "Invalid signature")
			return
		}

		result, err := svc.HandleEvent(ctx, payload)
		if err != nil {
			if rec != nil && result.EventType != "" {
				rec.IncDelivery(string(result.EventType), result.Outcome.String())
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if rec != nil {
			rec.IncDelivery(string(result.EventType), result.Outcome.String())
		}
		responses.WriteJSON(w, types.WebhookAck{Received: true})
	}
}
