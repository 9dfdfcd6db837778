package webhooks

import (
	"sort"
	"sync"
	"time"
)

const (
	throttleWindow = time.Minute
	throttleTTL    = 5 * time.Minute
	// throttleCap bounds the number of event types tracked at once.
	throttleCap = 256
)

type throttleState struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// topicThrottle caps deliveries per event type within a rolling one minute
// window. Idle entries expire after throttleTTL.
type topicThrottle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	states map[string]throttleState
}

func newTopicThrottle(perWindow int) *topicThrottle {
	return &topicThrottle{limit: perWindow, window: throttleWindow, states: make(map[string]throttleState)}
}

// allow reports whether another delivery of eventType fits in the current
// window, counting it when it does.
func (t *topicThrottle) allow(eventType string, now time.Time) bool {
	if t == nil || t.limit <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)

	state := t.states[eventType]
	if state.windowStart.IsZero() || now.Sub(state.windowStart) >= t.window {
		state.windowStart = now
		state.count = 0
	}
	state.lastSeen = now
	if state.count >= t.limit {
		t.states[eventType] = state
		return false
	}
	state.count++
	t.states[eventType] = state
	return true
}

func (t *topicThrottle) pruneLocked(now time.Time) {
	for key, state := range t.states {
		if now.Sub(state.lastSeen) > throttleTTL {
			delete(t.states, key)
		}
	}
	if len(t.states) <= throttleCap {
		return
	}
	keys := make([]string, 0, len(t.states))
	for key := range t.states {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return t.states[keys[i]].lastSeen.Before(t.states[keys[j]].lastSeen)
	})
	for _, key := range keys[:len(keys)-throttleCap] {
		delete(t.states, key)
	}
}
