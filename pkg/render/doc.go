// Package render turns an event into channel-ready content.
//
// Every taxonomy type has an entry in a static template table, and every
// template yields a call-to-action. Types without a template render as a
// generic "Notification" whose body is the JSON payload, so a missing entry
// degrades content but never blocks delivery.
package render
