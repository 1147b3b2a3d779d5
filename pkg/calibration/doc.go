// Package calibration implements the guided two-point calibration of the
// voltage/current sensing front end. It contains:
//
//   - State: the discrete steps of the calibration state machine
//   - Controller: the state machine itself, advanced one step per confirm
//   - Derive: the two-point linear fit producing a Result per Quantity
//   - PromptFor: the pure mapping from controller state to display text
//   - Status: a synthesized view model returned by HTTP APIs and the CLI
//
// The Controller is not safe for concurrent use. Hosts (the daemon, the
// local terminal session) serialize access to it.
package calibration
