// Package ui renders pipeline progress for the terminal.
//
// Two front ends consume the same progress.Event stream:
//   - Printer: one styled line per event, for plain terminals and logs
//   - RunModel: a Bubble Tea view with a stage bar, spinner and scrollable
//     agent output, which can stop the run
//
// Soft failures render in the warning color and hard stops in the danger
// color, in both front ends.
package ui
