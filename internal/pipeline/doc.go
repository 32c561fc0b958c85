// Package pipeline drives tasks through the plan → code → audit stages.
//
// For each remaining stage the engine assigns the stage's default agent and
// provider, assembles a prompt, runs the provider's CLI through its adapter,
// parses the markers in the agent's reply and decides what happens next.
// Audit is the only stage whose output can send a task backwards: a
// rejection returns it to code until the retry budget is spent, after which
// the run hard-stops and leaves the task in audit for a human.
//
// Every run ends in exactly one Result, with Status completed, stopped or
// failed. A failed Result with HardStop cleared is a soft failure: the task
// is positioned for a later retry and nothing is broken.
package pipeline
