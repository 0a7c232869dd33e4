package enums

// WebhookProvider names the upstream that delivered a webhook.
type WebhookProvider string

const WebhookProviderPaystack WebhookProvider = "paystack"

// WebhookOutcome records what a verified delivery did to local state.
type WebhookOutcome string

const (
	WebhookOutcomeApplied   WebhookOutcome = "applied"
	WebhookOutcomeSkipped   WebhookOutcome = "skipped"
	WebhookOutcomeUnmatched WebhookOutcome = "unmatched"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
)

func (o WebhookOutcome) String() string {
	return string(o)
}

// PaystackEventType is the "event" discriminator of a Paystack webhook body.
type PaystackEventType string

const (
	PaystackEventChargeSuccess        PaystackEventType = "charge.success"
	PaystackEventSubscriptionCreate   PaystackEventType = "subscription.create"
	PaystackEventSubscriptionDisable  PaystackEventType = "subscription.disable"
	PaystackEventSubscriptionNotRenew PaystackEventType = "subscription.not_renew"
)

// IsActivation reports whether the event confirms a payment or mandate.
func (e PaystackEventType) IsActivation() bool {
	return e == PaystackEventChargeSuccess || e == PaystackEventSubscriptionCreate
}

// IsCancellation reports whether the event ends the recurring mandate.
func (e PaystackEventType) IsCancellation() bool {
	return e == PaystackEventSubscriptionDisable || e == PaystackEventSubscriptionNotRenew
}
