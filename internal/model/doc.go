// Package model defines the data shared by the reminder engine, the mapping
// store and the platform notification queue.
//
// A Mapping correlates one OS alert identifier with the medication, schedule,
// calendar date and notification type it represents. Dates are local calendar
// days in YYYY-MM-DD form; clock times are HH:mm strings as stored on a
// Schedule.
package model
