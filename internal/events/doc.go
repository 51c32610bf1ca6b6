// Package events provides ordered, in-process listener registries.
//
// A Registry holds handlers in registration order and delivers every emitted
// Event to all of them. A handler that fails or panics is logged and does not
// stop delivery to the handlers registered after it. The connectivity monitor
// uses two registries (reconnect and disconnect); models and other
// collaborators register with them.
package events
