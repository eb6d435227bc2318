// Package notifier relays reservation change signals from the event bus to
// outside sinks.
//
// Bursts of signals are coalesced into one delivery and deliveries are
// rate limited. The log sink is always present; a hook command can be
// configured to run once per delivery.
package notifier
