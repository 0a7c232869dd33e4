package pubsub

import (
	"context"
	"testing"
)

func TestTopicResourceName(t *testing.T) {
	tests := []struct {
		project string
		name    string
		want    string
	}{
		{project: "bioshop", name: "subscription-events", want: "projects/bioshop/topics/subscription-events"},
		{project: "bioshop", name: " subscription-events ", want: "projects/bioshop/topics/subscription-events"},
		{project: "other", name: "projects/bioshop/topics/x", want: "projects/bioshop/topics/x"},
		{project: "", name: "subscription-events", want: ""},
		{project: "bioshop", name: "", want: ""},
	}
	for _, tt := range tests {
		if got := topicResourceName(tt.project, tt.name); got != tt.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tt.project, tt.name, got, tt.want)
		}
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatal("expected nil publisher from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on nil client to fail")
	}
}

func TestNilClientIsNotOrdered(t *testing.T) {
	var c *Client
	if c.Ordered() {
		t.Fatal("nil client cannot be ordered")
	}
}
