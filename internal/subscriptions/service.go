package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
	"github.com/angelmondragon/bioshop-backend/pkg/outbox"
	"github.com/angelmondragon/bioshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bioshop-backend/pkg/paystack"
	"gorm.io/gorm"
)

const callbackPath = "/dashboard"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutProvider starts a hosted checkout with the payment provider.
type CheckoutProvider interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeTransactionRequest) (*paystack.InitializeTransactionResult, error)
}

// Service defines the subscription lifecycle surface.
type Service interface {
	Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error)
	Get(ctx context.Context, profileID string) (*models.Subscription, error)
	SetStatus(ctx context.Context, profileID string, input SetStatusInput) (*models.Subscription, error)
	Delete(ctx context.Context, profileID string, input DeleteInput) error
	Activate(ctx context.Context, input ActivationInput) (*models.Subscription, error)
	CancelByCustomerCode(ctx context.Context, customerCode string) ([]models.Subscription, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Provider          CheckoutProvider
	PlanCode          string
	AmountMinor       int64
	Currency          string
	PublicURL         string
	Logger            *logger.Logger
}

// InitializeInput is the initiator request after validation.
type InitializeInput struct {
	ProfileID string
	Email     string
	Origin    string
}

// InitializeResult is the hosted checkout handed back to the browser.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// SetStatusInput is an operator status change guarded by the version read.
type SetStatusInput struct {
	Status     enums.SubscriptionStatus
	Version    int64
	OperatorID string
}

// DeleteInput optionally guards a delete with the version read.
type DeleteInput struct {
	Version    *int64
	OperatorID string
}

// ActivationInput carries the fields of a payment confirmation.
type ActivationInput struct {
	ProfileID        string
	CustomerCode     *string
	SubscriptionCode *string
	NextPaymentDate  *time.Time
}

type service struct {
	repo        Repository
	txRunner    txRunner
	outbox      outbox.Emitter
	provider    CheckoutProvider
	planCode    string
	amountMinor int64
	currency    string
	publicURL   string
	logg        *logger.Logger
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("checkout provider required")
	}
	if strings.TrimSpace(params.PlanCode) == "" {
		return nil, fmt.Errorf("plan code required")
	}
	if params.AmountMinor <= 0 {
		return nil, fmt.Errorf("plan amount must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:        params.Repo,
		txRunner:    params.TransactionRunner,
		outbox:      params.Outbox,
		provider:    params.Provider,
		planCode:    strings.TrimSpace(params.PlanCode),
		amountMinor: params.AmountMinor,
		currency:    strings.TrimSpace(params.Currency),
		publicURL:   strings.TrimRight(strings.TrimSpace(params.PublicURL), "/"),
		logg:        logg,
	}, nil
}

// Initialize creates a hosted checkout and records a pending subscription.
// The checkout URL is only returned once the local row is written.
func (s *service) Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	profileID := strings.TrimSpace(input.ProfileID)
	email := strings.TrimSpace(input.Email)
	if profileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profileId is required")
	}
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	ctx = s.logg.WithProfileID(ctx, profileID)

	checkout, err := s.provider.InitializeTransaction(ctx, paystack.InitializeTransactionRequest{
		Email:       email,
		Amount:      s.amountMinor,
		Plan:        s.planCode,
		Currency:    s.currency,
		CallbackURL: s.callbackURL(input.Origin),
		Metadata:    map[string]string{"profile_id": profileID},
	})
	if err != nil {
		return nil, err
	}

	customerCode := strings.TrimSpace(checkout.CustomerCode)
	if customerCode == "" {
		customerCode = email
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		prev, err := repo.LockByProfileID(ctx, profileID)
		if err != nil {
			return err
		}
		next, err := Transition(statusOf(prev), TriggerCheckoutStarted)
		if err != nil {
			return err
		}
		if err := repo.UpsertCheckout(ctx, CheckoutUpsert{
			ProfileID:    profileID,
			CustomerCode: customerCode,
			EmailToken:   checkout.AccessCode,
			PlanCode:     s.planCode,
			Status:       next,
		}); err != nil {
			return err
		}
		return s.emitStatusChange(ctx, tx, repo, profileID, prev, TriggerCheckoutStarted, &outbox.ActorRef{Kind: outbox.ActorKindClient, ID: profileID})
	})
	if err != nil {
		return nil, wrapStoreError(err, "persist pending subscription")
	}

	s.logg.Info(s.logg.WithField(ctx, "reference", checkout.Reference), "subscription.checkout_initialized")
	return &InitializeResult{
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Reference:        checkout.Reference,
	}, nil
}

func (s *service) Get(ctx context.Context, profileID string) (*models.Subscription, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	row, err := s.repo.FindByProfileID(ctx, profileID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return row, nil
}

func (s *service) SetStatus(ctx context.Context, profileID string, input SetStatusInput) (*models.Subscription, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	trigger, err := OperatorTrigger(input.Status)
	if err != nil {
		return nil, err
	}

	var updated *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockByProfileID(ctx, profileID)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if current.Version != input.Version {
			return staleVersion(current.Version)
		}
		next, err := Transition(&current.Status, trigger)
		if err != nil {
			return err
		}
		ok, err := repo.UpdateStatus(ctx, current.ID, next, input.Version)
		if err != nil {
			return err
		}
		if !ok {
			return staleVersion(current.Version)
		}
		actor := &outbox.ActorRef{Kind: outbox.ActorKindOperator, ID: input.OperatorID}
		if err := s.emitStatusChange(ctx, tx, repo, profileID, current, trigger, actor); err != nil {
			return err
		}
		updated, err = repo.FindByProfileID(ctx, profileID)
		return err
	})
	if err != nil {
		return nil, wrapStoreError(err, "update subscription status")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"profile_id":  profileID,
		"status":      updated.Status,
		"operator_id": input.OperatorID,
	}), "subscription.status_set_by_operator")
	return updated, nil
}

func (s *service) Delete(ctx context.Context, profileID string, input DeleteInput) error {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockByProfileID(ctx, profileID)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if input.Version != nil && *input.Version != current.Version {
			return staleVersion(current.Version)
		}
		ok, err := repo.Delete(ctx, current.ID, current.Version)
		if err != nil {
			return err
		}
		if !ok {
			return staleVersion(current.Version)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionDeleted,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   current.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorKindOperator, ID: input.OperatorID},
			Data: payloads.SubscriptionDeletedEvent{
				SubscriptionID: current.ID,
				ProfileID:      current.ProfileID,
				LastStatus:     current.Status,
			},
		})
	})
	if err != nil {
		return wrapStoreError(err, "delete subscription")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"profile_id":  profileID,
		"operator_id": input.OperatorID,
	}), "subscription.deleted_by_operator")
	return nil
}

// Activate upserts an active subscription for a confirmed payment.
func (s *service) Activate(ctx context.Context, input ActivationInput) (*models.Subscription, error) {
	profileID := strings.TrimSpace(input.ProfileID)
	if profileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	var activated *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		prev, err := repo.LockByProfileID(ctx, profileID)
		if err != nil {
			return err
		}
		next, err := Transition(statusOf(prev), TriggerPaymentConfirmed)
		if err != nil {
			return err
		}
		if err := repo.UpsertActivation(ctx, ActivationUpsert{
			ProfileID:        profileID,
			CustomerCode:     nonEmpty(input.CustomerCode),
			SubscriptionCode: nonEmpty(input.SubscriptionCode),
			PlanCode:         s.planCode,
			Status:           next,
			NextPaymentDate:  input.NextPaymentDate,
		}); err != nil {
			return err
		}
		if err := s.emitStatusChange(ctx, tx, repo, profileID, prev, TriggerPaymentConfirmed, &outbox.ActorRef{Kind: outbox.ActorKindWebhook}); err != nil {
			return err
		}
		activated, err = repo.FindByProfileID(ctx, profileID)
		return err
	})
	if err != nil {
		return nil, wrapStoreError(err, "activate subscription")
	}
	return activated, nil
}

// CancelByCustomerCode cancels every subscription owned by the provider
// customer. An empty result means nothing matched.
func (s *service) CancelByCustomerCode(ctx context.Context, customerCode string) ([]models.Subscription, error) {
	customerCode = strings.TrimSpace(customerCode)
	if customerCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer code is required")
	}

	var cancelled []models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.LockByCustomerCode(ctx, customerCode)
		if err != nil {
			return err
		}
		for i := range rows {
			current := rows[i]
			next, err := Transition(&current.Status, TriggerProviderDisabled)
			if err != nil {
				return err
			}
			ok, err := repo.UpdateStatus(ctx, current.ID, next, current.Version)
			if err != nil {
				return err
			}
			if !ok {
				return staleVersion(current.Version)
			}
			if err := s.emitStatusChange(ctx, tx, repo, current.ProfileID, &current, TriggerProviderDisabled, &outbox.ActorRef{Kind: outbox.ActorKindWebhook}); err != nil {
				return err
			}
			current.Status = next
			current.Version++
			cancelled = append(cancelled, current)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err, "cancel subscriptions")
	}
	return cancelled, nil
}

func (s *service) emitStatusChange(ctx context.Context, tx *gorm.DB, repo Repository, profileID string, prev *models.Subscription, trigger Trigger, actor *outbox.ActorRef) error {
	current, err := repo.FindByProfileID(ctx, profileID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("subscription %s vanished after write", profileID)
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   current.ID,
		Actor:         actor,
		Data: payloads.SubscriptionStatusChangedEvent{
			SubscriptionID:   current.ID,
			ProfileID:        current.ProfileID,
			CustomerCode:     current.CustomerCode,
			SubscriptionCode: current.SubscriptionCode,
			PlanCode:         current.PlanCode,
			PreviousStatus:   statusOf(prev),
			Status:           current.Status,
			Trigger:          string(trigger),
			NextPaymentDate:  current.NextPaymentDate,
			Version:          current.Version,
		},
	})
}

func (s *service) callbackURL(origin string) string {
	base := strings.TrimRight(strings.TrimSpace(origin), "/")
	if base == "" || base == "null" {
		base = s.publicURL
	}
	if base == "" {
		return ""
	}
	return base + callbackPath
}

func statusOf(row *models.Subscription) *enums.SubscriptionStatus {
	if row == nil {
		return nil
	}
	status := row.Status
	return &status
}

func nonEmpty(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func staleVersion(current int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "subscription was modified concurrently; reload and retry").
		WithDetails(map[string]any{"current_version": current})
}

// wrapStoreError keeps typed domain errors and marks the rest as store failures.
func wrapStoreError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if pkgerrors.IsPGClass(err, "serialization_failure") || pkgerrors.IsPGClass(err, "deadlock_detected") {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
