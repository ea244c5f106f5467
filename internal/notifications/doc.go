// Package notifications delivers batch events via ntfy.
//
// The default implementation publishes to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Each event
// class has its own toggle so users can keep error alerts while silencing
// routine batch summaries.
//
// Delivery failures are returned to the caller, which logs them; a failed
// notification never changes the outcome of a batch.
package notifications
