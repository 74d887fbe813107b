// Package harness runs end-to-end scenarios against the scheduling engine.
//
// A scenario freezes the clock, declares medications, applies a sequence of
// steps (scheduling passes, cancellations, logged doses, time advances,
// simulated OS drift) and asserts on the final alert queue and mapping store.
// Every run uses a fresh in-memory store and queue with sequential ids, so
// the text snapshot of a run is stable enough for golden comparison.
//
// # Scenario Format
//
//	name: morning_group
//	description: "Two medications at 08:00 share one alert"
//	now: "2026-10-16T07:00"
//	timezone: UTC
//	medications:
//	  - id: med-a
//	    name: Aspirin
//	    schedules:
//	      - { id: sched-a, time: "08:00" }
//	steps:
//	  - action: schedule
//	    days: 2
//	  - action: dose
//	    medication: med-a
//	    schedule: sched-a
//	    date: today
//	assertions:
//	  - type: alert_count
//	    date: today+1
//	    count: 1
//
// Dates in steps and assertions may be written as YYYY-MM-DD, "today" or
// "today+N", resolved against the engine's current day.
package harness
