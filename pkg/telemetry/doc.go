// Package telemetry provides observability for the OpenMatter type engine:
// structured logging, distributed tracing, metrics collection, and the event
// surface external collaborators consume.
//
// # Events
//
// The EventPublisher is the engine's sole boundary surface. Every significant
// operation publishes an event in-line with the triggering call:
//
//   - type.defined - a definition was installed into a registry
//   - instance.constructed - a product or variant instance was built
//   - pattern.compiled - a match block was compiled (cache hits are silent)
//   - pattern.dispatched - a compiled pattern selected a handler
//   - validation.failed - instance data was rejected
//   - lazy.forced - a lazy recursion cell ran its computation
//   - policy.violation - a definition failed the policy gate
//
// Subscribers register with a filter over event kinds and receive a handle
// for later removal:
//
//	handle := events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Kind, e.Type)
//	}, telemetry.KindFilter(telemetry.EventKindTypeDefined))
//	defer events.Unsubscribe(handle)
//
// Delivery is synchronous by default; subscribers must return quickly or hand
// off asynchronously themselves. No ordering guarantee is made across
// subscribers.
//
// # Logging
//
// Logger wraps zerolog with component child loggers and domain field helpers
// (WithType, WithVariant, WithSignature, WithCellID).
//
// # Metrics
//
// Metrics maintains Prometheus collectors for definitions, constructions,
// compilations, dispatches, validation failures, and lazy forces. The
// Subscriber adapter feeds collectors from the event stream, so engine call
// sites only publish events.
//
// # Tracing
//
// Tracer wraps OpenTelemetry with span helpers for the engine's operations
// and supports stdout and OTLP gRPC exporters.
package telemetry
