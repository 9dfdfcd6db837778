package webhooks

import (
	"fmt"
	"testing"
	"time"
)

func TestTopicThrottleWindow(t *testing.T) {
	th := newTopicThrottle(2)
	now := time.Unix(1_700_000_000, 0)
	if !th.allow("a", now) || !th.allow("a", now) {
		t.Fatalf("expected first two deliveries to pass")
	}
	if th.allow("a", now.Add(time.Second)) {
		t.Fatalf("expected third delivery in window to be throttled")
	}
	if !th.allow("b", now) {
		t.Fatalf("expected other topics to be independent")
	}
	if !th.allow("a", now.Add(throttleWindow)) {
		t.Fatalf("expected window reset")
	}
}

func TestTopicThrottleDisabled(t *testing.T) {
	var nilThrottle *topicThrottle
	if !nilThrottle.allow("a", time.Now()) {
		t.Fatalf("nil throttle must allow")
	}
	if !newTopicThrottle(0).allow("a", time.Now()) {
		t.Fatalf("zero limit must allow")
	}
}

func TestTopicThrottlePrunes(t *testing.T) {
	th := newTopicThrottle(1)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < throttleCap+10; i++ {
		th.allow(fmt.Sprintf("topic-%d", i), now.Add(time.Duration(i)*time.Millisecond))
	}
	th.allow("last", now.Add(time.Second))
	if len(th.states) > throttleCap {
		t.Fatalf("expected at most %d tracked topics, got %d", throttleCap, len(th.states))
	}
	th.allow("fresh", now.Add(throttleTTL+2*time.Second))
	if len(th.states) != 1 {
		t.Fatalf("expected idle entries to expire, got %d", len(th.states))
	}
}
