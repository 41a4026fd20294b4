// Package result delivers the outcome of one write operation to one
// subscriber.
//
// A Channel carries exactly one outcome. Success is delivered as Next
// followed by Completed; failure as a single Failed. Delivery always goes
// through the Channel's Dispatcher, never inline on the goroutine that
// completed the operation.
package result
