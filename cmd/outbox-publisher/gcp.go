package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// publisher and publishResult narrow the Pub/Sub client so tests can fake it.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

type orderedClient interface {
	Ordered() bool
}

func gcpPublisherFactory(client pubSubClient) publisherFactory {
	ordered := false
	if oc, ok := client.(orderedClient); ok {
		ordered = oc.Ordered()
	}
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p: p, ordered: ordered}
	}
}

type gcpPublisher struct {
	p       *gcppubsub.Publisher
	ordered bool
}

// Publish keys ordered messages by aggregate id so one subscription's
// changes are delivered in commit order.
func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if g.ordered {
		msg.OrderingKey = msg.Attributes["aggregate_id"]
	}
	return gcpResult{r: g.p.Publish(ctx, msg), p: g.p, key: msg.OrderingKey}
}

type gcpResult struct {
	r   *gcppubsub.PublishResult
	p   *gcppubsub.Publisher
	key string
}

func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := g.r.Get(ctx)
	if err != nil && g.key != "" {
		// A failed ordered publish pauses the key until resumed.
		g.p.ResumePublish(g.key)
	}
	return id, err
}
