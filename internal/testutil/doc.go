// Package testutil holds deterministic stand-ins for the engine's clock and
// ID generator, used by package tests and the conformance harness.
package testutil
