package paystackwebhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/bioshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
)

// Event is one decoded Paystack delivery. Exactly one concrete type is
// returned by Decode for every body.
type Event interface {
	Type() enums.PaystackEventType
}

// ActivationEvent confirms a payment or a recurring mandate.
type ActivationEvent struct {
	EventType        enums.PaystackEventType
	ProfileID        string
	CustomerCode     string
	SubscriptionCode string
	NextPaymentDate  *time.Time
}

func (e ActivationEvent) Type() enums.PaystackEventType { return e.EventType }

// CancellationEvent ends the recurring mandate of a provider customer.
type CancellationEvent struct {
	EventType    enums.PaystackEventType
	CustomerCode string
}

func (e CancellationEvent) Type() enums.PaystackEventType { return e.EventType }

// UnhandledEvent is any event type the service does not act on.
type UnhandledEvent struct {
	EventType enums.PaystackEventType
}

func (e UnhandledEvent) Type() enums.PaystackEventType { return e.EventType }

type envelope struct {
	Event json.RawMessage `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// eventFields holds the raw members of data. Members are decoded on demand so
// one odd field never rejects the delivery.
type eventFields map[string]json.RawMessage

func decodeFields(raw json.RawMessage) eventFields {
	var fields eventFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

func (f eventFields) object(key string) eventFields {
	return decodeFields(f[key])
}

func (f eventFields) str(key string) string {
	var value string
	if err := json.Unmarshal(f[key], &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func (f eventFields) customerCode() string {
	return f.object("customer").str("customer_code")
}

// Decode parses a verified webhook body into its tagged event. Only a body
// that is not a JSON object is rejected; a missing or non-string event type
// yields an UnhandledEvent.
func Decode(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	// A non-string event stays empty.
	var name string
	_ = json.Unmarshal(env.Event, &name)
	eventType := enums.PaystackEventType(strings.TrimSpace(name))

	switch {
	case eventType.IsActivation():
		return decodeActivation(eventType, decodeFields(env.Data)), nil
	case eventType.IsCancellation():
		return CancellationEvent{EventType: eventType, CustomerCode: decodeFields(env.Data).customerCode()}, nil
	default:
		return UnhandledEvent{EventType: eventType}, nil
	}
}

func decodeActivation(eventType enums.PaystackEventType, data eventFields) ActivationEvent {
	event := ActivationEvent{
		EventType:    eventType,
		ProfileID:    profileIDFromMetadata(data["metadata"]),
		CustomerCode: data.customerCode(),
	}

	subscription := data.object("subscription")
	event.SubscriptionCode = subscription.str("subscription_code")
	if event.SubscriptionCode == "" {
		event.SubscriptionCode = data.str("subscription_code")
	}
	nextPayment := subscription.str("next_payment_date")
	if nextPayment == "" {
		nextPayment = data.str("next_payment_date")
	}
	event.NextPaymentDate = parseTime(nextPayment)
	return event
}

// profileIDFromMetadata accepts metadata as an object or as a JSON encoded
// string. Anything else yields an empty id.
func profileIDFromMetadata(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return ""
		}
		raw = []byte(encoded)
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	switch v := meta["profile_id"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
