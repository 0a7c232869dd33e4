package subscriptions

import (
	"fmt"

	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
)

// Trigger names the cause of a status write.
type Trigger string

const (
	TriggerCheckoutStarted    Trigger = "checkout_started"
	TriggerPaymentConfirmed   Trigger = "payment_confirmed"
	TriggerProviderDisabled   Trigger = "provider_disabled"
	TriggerOperatorActivate   Trigger = "operator_activate"
	TriggerOperatorDeactivate Trigger = "operator_deactivate"
)

type transitionRule struct {
	allowMissing bool
	from         []enums.SubscriptionStatus
	to           enums.SubscriptionStatus
}

var allStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionStatusPending,
	enums.SubscriptionStatusActive,
	enums.SubscriptionStatusCancelled,
	enums.SubscriptionStatusInactive,
}

var transitionRules = map[Trigger]transitionRule{
	TriggerCheckoutStarted: {
		allowMissing: true,
		from:         allStatuses,
		to:           enums.SubscriptionStatusPending,
	},
	TriggerPaymentConfirmed: {
		allowMissing: true,
		from:         allStatuses,
		to:           enums.SubscriptionStatusActive,
	},
	TriggerProviderDisabled: {
		from: allStatuses,
		to:   enums.SubscriptionStatusCancelled,
	},
	TriggerOperatorActivate: {
		from: []enums.SubscriptionStatus{
			enums.SubscriptionStatusPending,
			enums.SubscriptionStatusCancelled,
			enums.SubscriptionStatusInactive,
		},
		to: enums.SubscriptionStatusActive,
	},
	TriggerOperatorDeactivate: {
		from: []enums.SubscriptionStatus{
			enums.SubscriptionStatusPending,
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusCancelled,
		},
		to: enums.SubscriptionStatusInactive,
	},
}

// Transition returns the status a subscription moves to for the trigger.
// from is nil when no row exists yet.
func Transition(from *enums.SubscriptionStatus, trigger Trigger) (enums.SubscriptionStatus, error) {
	rule, ok := transitionRules[trigger]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown subscription trigger %q", trigger))
	}
	if from == nil {
		if rule.allowMissing {
			return rule.to, nil
		}
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	for _, candidate := range rule.from {
		if candidate == *from {
			return rule.to, nil
		}
	}
	return "", pkgerrors.New(
		pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot apply %s to a %s subscription", trigger, *from),
	).WithDetails(map[string]any{
		"from":    string(*from),
		"trigger": string(trigger),
	})
}

// OperatorTrigger maps an operator's requested status to its trigger.
func OperatorTrigger(target enums.SubscriptionStatus) (Trigger, error) {
	switch target {
	case enums.SubscriptionStatusActive:
		return TriggerOperatorActivate, nil
	case enums.SubscriptionStatusInactive:
		return TriggerOperatorDeactivate, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "status must be active or inactive")
	}
}
