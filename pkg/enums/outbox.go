package enums

// OutboxAggregateType is outbox_events.aggregate_type.
type OutboxAggregateType string

const AggregateSubscription OutboxAggregateType = "subscription"

var aggregateTypes = []OutboxAggregateType{AggregateSubscription}

func (a OutboxAggregateType) IsValid() bool {
	_, err := ParseOutboxAggregateType(string(a))
	return err == nil
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

// OutboxEventType is outbox_events.event_type and the event_type attribute
// on every published message.
type OutboxEventType string

const (
	EventSubscriptionStatusChanged OutboxEventType = "subscription_status_changed"
	EventSubscriptionDeleted       OutboxEventType = "subscription_deleted"
)

var outboxEventTypes = []OutboxEventType{
	EventSubscriptionStatusChanged,
	EventSubscriptionDeleted,
}

func (e OutboxEventType) IsValid() bool {
	_, err := ParseOutboxEventType(string(e))
	return err == nil
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, outboxEventTypes)
}
