package paystackwebhook

import (
	"context"
	"time"

	"github.com/angelmondragon/bioshop-backend/internal/subscriptions"
	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
)

type subscriptionWriter interface {
	Activate(ctx context.Context, input subscriptions.ActivationInput) (*models.Subscription, error)
	CancelByCustomerCode(ctx context.Context, customerCode string) ([]models.Subscription, error)
}

type replayGuard interface {
	CheckAndMark(ctx context.Context, replayKey string) (bool, error)
	Release(ctx context.Context, replayKey string) error
}

type ServiceParams struct {
	Subscriptions subscriptionWriter
	Audit         AuditRepository
	Guard         replayGuard
	Logger        *logger.Logger
	Now           func() time.Time
}

// Result describes what a verified delivery did.
type Result struct {
	EventType enums.PaystackEventType
	Outcome   enums.WebhookOutcome
}

type Service struct {
	subs  subscriptionWriter
	audit AuditRepository
	guard replayGuard
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription service required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		subs:  params.Subscriptions,
		audit: params.Audit,
		guard: params.Guard,
		logg:  logg,
		now:   now,
	}, nil
}

// HandleEvent applies a signature-verified body. A returned error means local
// state was not reconciled and the provider should retry.
func (s *Service) HandleEvent(ctx context.Context, body []byte) (Result, error) {
	event, err := Decode(body)
	if err != nil {
		return Result{}, err
	}
	eventType := event.Type()
	ctx = s.logg.WithEventType(ctx, string(eventType))

	record := &models.WebhookEvent{
		Provider:    enums.WebhookProviderPaystack,
		EventType:   string(eventType),
		PayloadHash: PayloadHash(body),
		ReceivedAt:  s.now().UTC(),
	}
	replayKey := ReplayKey(record.EventType, record.PayloadHash)

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, replayKey)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "paystack.webhook.replay_guard_unavailable")
		} else if seen {
			s.logg.Info(ctx, "paystack.webhook.duplicate")
			return s.finish(ctx, record, eventType, enums.WebhookOutcomeDuplicate, nil)
		}
	}

	outcome, applyErr := s.apply(ctx, event, record)
	if applyErr != nil {
		if s.guard != nil {
			if err := s.guard.Release(ctx, replayKey); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "paystack.webhook.replay_release_failed")
			}
		}
		return s.finish(ctx, record, eventType, enums.WebhookOutcomeFailed, applyErr)
	}
	return s.finish(ctx, record, eventType, outcome, nil)
}

func (s *Service) apply(ctx context.Context, event Event, record *models.WebhookEvent) (enums.WebhookOutcome, error) {
	switch e := event.(type) {
	case ActivationEvent:
		if e.CustomerCode != "" {
			record.CustomerCode = &e.CustomerCode
		}
		if e.ProfileID == "" {
			s.logg.Warn(ctx, "paystack.webhook.profile_id_missing")
			return enums.WebhookOutcomeSkipped, nil
		}
		record.ProfileID = &e.ProfileID
		ctx = s.logg.WithProfileID(ctx, e.ProfileID)
		row, err := s.subs.Activate(ctx, subscriptions.ActivationInput{
			ProfileID:        e.ProfileID,
			CustomerCode:     optional(e.CustomerCode),
			SubscriptionCode: optional(e.SubscriptionCode),
			NextPaymentDate:  e.NextPaymentDate,
		})
		if err != nil {
			return "", err
		}
		s.logg.Info(s.logg.WithField(ctx, "version", row.Version), "paystack.webhook.subscription_activated")
		return enums.WebhookOutcomeApplied, nil

	case CancellationEvent:
		if e.CustomerCode == "" {
			s.logg.Warn(ctx, "paystack.webhook.customer_code_missing")
			return enums.WebhookOutcomeSkipped, nil
		}
		record.CustomerCode = &e.CustomerCode
		ctx = s.logg.WithCustomerCode(ctx, e.CustomerCode)
		rows, err := s.subs.CancelByCustomerCode(ctx, e.CustomerCode)
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			s.logg.Warn(ctx, "paystack.webhook.no_subscription_for_customer")
			return enums.WebhookOutcomeUnmatched, nil
		}
		s.logg.Info(s.logg.WithField(ctx, "cancelled", len(rows)), "paystack.webhook.subscription_cancelled")
		return enums.WebhookOutcomeApplied, nil

	default:
		s.logg.Info(ctx, "paystack.webhook.unhandled_event")
		return enums.WebhookOutcomeIgnored, nil
	}
}

// finish writes the audit row. Audit failures are only logged.
func (s *Service) finish(ctx context.Context, record *models.WebhookEvent, eventType enums.PaystackEventType, outcome enums.WebhookOutcome, applyErr error) (Result, error) {
	record.Outcome = outcome
	if applyErr != nil {
		msg := applyErr.Error()
		record.Error = &msg
	}
	if err := s.audit.Record(ctx, record); err != nil {
		s.logg.Error(ctx, "paystack.webhook.audit_failed", err)
	}
	result := Result{EventType: eventType, Outcome: outcome}
	if applyErr != nil {
		return result, wrapApplyError(applyErr)
	}
	return result, nil
}

func wrapApplyError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile webhook")
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
