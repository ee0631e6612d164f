// Package provider defines the contract every calendar backend implements and
// the registry that holds the configured set.
//
// Each backend lives in its own subpackage (google, outlook, caldav) with an
// Adapter performing the remote calls and a Codec translating between the
// canonical event.Event and the backend's native event type. The set of
// backends is closed: a Registry accepts at most one adapter per
// event.Source and keeps them in registration order.
//
// Remote failures are reported as *Error, which names the provider and the
// operation. Native events that cannot be mapped are reported as *DecodeError,
// wrapped inside an *Error by the adapters.
package provider
