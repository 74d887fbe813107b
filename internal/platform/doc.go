// Package platform models the host operating system's local notification
// primitives.
//
// The engine only ever talks to the OS through Notifier: schedule a one-time
// alert, cancel it, list what is outstanding, list what is currently shown
// in the tray, and dismiss a shown alert. Nothing here knows about
// medications or mappings.
//
// MemoryQueue is a faithful in-process model of such a queue, including the
// hard cap on outstanding alerts. FileQueue persists a MemoryQueue as YAML so
// successive CLI invocations observe the same OS state.
package platform
