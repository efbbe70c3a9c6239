package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted by the type engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Kind is the event kind.
	Kind string `json:"kind"`

	// Source identifies which component emitted the event.
	Source string `json:"source"`

	// Type is the type definition name the event relates to, if any.
	Type string `json:"type,omitempty"`

	// Variant is the sum-type variant involved, if any.
	Variant string `json:"variant,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Duration is how long the triggering operation took, if applicable.
	Duration time.Duration `json:"duration,omitempty"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event kind constants for the engine's event surface.
const (
	EventKindTypeDefined          = "type.defined"
	EventKindInstanceConstructed  = "instance.constructed"
	EventKindPatternCompiled      = "pattern.compiled"
	EventKindPatternDispatched    = "pattern.dispatched"
	EventKindValidationFailed     = "validation.failed"
	EventKindLazyForced           = "lazy.forced"
	EventKindPolicyViolation      = "policy.violation"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// KindFilter returns a filter that accepts only events of the given kinds.
func KindFilter(kinds ...string) EventFilter {
	set := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(event Event) bool {
		return set[event.Kind]
	}
}

// SubscriptionHandle identifies a registered subscriber.
type SubscriptionHandle string

// EventPublisher manages event publishing and subscriptions. Delivery is
// synchronous and in-line with the triggering operation by default; no
// ordering guarantee is made across subscribers.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers map[SubscriptionHandle]subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{
		config:      cfg,
		subscribers: make(map[SubscriptionHandle]subscriberEntry),
	}
	if !cfg.Enabled {
		return ep, nil
	}

	if cfg.EnableAsync {
		ctx, cancel := context.WithCancel(context.Background())
		ep.ctx = ctx
		ep.cancel = cancel
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishTypeDefined publishes a type definition event. count is the number
// of fields (product) or variants (sum) the definition carries.
func (ep *EventPublisher) PublishTypeDefined(name, kind string, count int) error {
	return ep.Publish(Event{
		Kind:    EventKindTypeDefined,
		Source:  "registry",
		Type:    name,
		Message: fmt.Sprintf("Type %s defined as %s with %d members", name, kind, count),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"definition_kind": kind,
			"member_count":    count,
		},
	})
}

// PublishInstanceConstructed publishes an instance construction event.
// variant is empty for product types.
func (ep *EventPublisher) PublishInstanceConstructed(typeName, variant string, duration time.Duration) error {
	msg := fmt.Sprintf("Instance of %s constructed", typeName)
	if variant != "" {
		msg = fmt.Sprintf("Instance of %s.%s constructed", typeName, variant)
	}
	return ep.Publish(Event{
		Kind:     EventKindInstanceConstructed,
		Source:   "validator",
		Type:     typeName,
		Variant:  variant,
		Message:  msg,
		Level:    EventLevelInfo,
		Duration: duration,
	})
}

// PublishPatternCompiled publishes a pattern compilation event. The event is
// emitted on actual compilation only; cache hits are silent, which makes the
// compile cache observable through event counts.
func (ep *EventPublisher) PublishPatternCompiled(typeName, signature string, duration time.Duration, exhaustive bool) error {
	return ep.Publish(Event{
		Kind:     EventKindPatternCompiled,
		Source:   "compiler",
		Type:     typeName,
		Message:  fmt.Sprintf("Pattern over %s compiled (exhaustive=%v)", typeName, exhaustive),
		Level:    EventLevelInfo,
		Duration: duration,
		Data: map[string]interface{}{
			"clause_signature": signature,
			"exhaustive":       exhaustive,
		},
	})
}

// PublishPatternDispatched publishes a successful dispatch event.
func (ep *EventPublisher) PublishPatternDispatched(typeName, variant string, duration time.Duration) error {
	return ep.Publish(Event{
		Kind:     EventKindPatternDispatched,
		Source:   "dispatcher",
		Type:     typeName,
		Variant:  variant,
		Message:  fmt.Sprintf("Dispatched %s.%s", typeName, variant),
		Level:    EventLevelInfo,
		Duration: duration,
	})
}

// PublishValidationFailed publishes a validation failure event.
func (ep *EventPublisher) PublishValidationFailed(typeName, errorKind string) error {
	return ep.Publish(Event{
		Kind:    EventKindValidationFailed,
		Source:  "validator",
		Type:    typeName,
		Message: fmt.Sprintf("Validation of %s failed: %s", typeName, strings.ToLower(errorKind)),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"error_kind": errorKind,
		},
	})
}

// PublishLazyForced publishes a lazy cell force event.
func (ep *EventPublisher) PublishLazyForced(cellID string, duration time.Duration) error {
	return ep.Publish(Event{
		Kind:     EventKindLazyForced,
		Source:   "cell",
		Message:  fmt.Sprintf("Lazy cell %s forced", cellID),
		Level:    EventLevelInfo,
		Duration: duration,
		Data: map[string]interface{}{
			"cell_id": cellID,
		},
	})
}

// PublishPolicyViolation publishes a definition policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(typeName, policyName, reason string) error {
	return ep.Publish(Event{
		Kind:    EventKindPolicyViolation,
		Source:  "policy",
		Type:    typeName,
		Message: fmt.Sprintf("Policy violation on %s: %s - %s", typeName, policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe registers a subscriber with an optional filter and returns a
// handle that can later be passed to Unsubscribe. A nil filter receives all
// events.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) SubscriptionHandle {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	handle := SubscriptionHandle(uuid.New().String())
	ep.subscribers[handle] = subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	}
	return handle
}

// Unsubscribe removes a previously registered subscriber. It reports whether
// the handle was known.
func (ep *EventPublisher) Unsubscribe(handle SubscriptionHandle) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if _, ok := ep.subscribers[handle]; !ok {
		return false
	}
	delete(ep.subscribers, handle)
	return true
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers whose filter accepts it.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher, flushing any buffered
// events first.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || !ep.config.EnableAsync {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
