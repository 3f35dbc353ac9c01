package subsystem

import (
	"errors"
	"fmt"
)

// ErrStorage is the sentinel all snapshot persistence failures wrap. A failed
// snapshot write is a hard stop to migration; a failed load during rollback
// must leave routing untouched.
var ErrStorage = errors.New("snapshot storage failure")

// RegistrationError reports a migration attempted without both
// implementations registered. Fatal to the call, not to the process.
type RegistrationError struct {
	Subsystem ID
	Missing   string // "legacy", "new" or "codec"
}

func (e RegistrationError) Error() string {
	return fmt.Sprintf("subsystem %s: %s implementation not registered", e.Subsystem, e.Missing)
}

// ConversionError reports that a target representation could not be produced.
// Migration aborts with no state mutated.
type ConversionError struct {
	Subsystem ID
	Detail    string
}

func (e ConversionError) Error() string {
	return fmt.Sprintf("subsystem %s: conversion failed: %s", e.Subsystem, e.Detail)
}

// ValidationFailureError reports one or more critical validation issues.
type ValidationFailureError struct {
	Subsystem ID
	Critical  int
	Score     float64
}

func (e ValidationFailureError) Error() string {
	return fmt.Sprintf("subsystem %s: validation failed with %d critical issue(s), score %.1f", e.Subsystem, e.Critical, e.Score)
}

// StorageError reports a snapshot that could not be persisted or loaded.
type StorageError struct {
	Op     string // "create", "load", "delete"
	ID     string
	Detail string
}

func (e StorageError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %s", e.Op, e.ID, e.Detail)
}

// Unwrap ties StorageError into the ErrStorage sentinel chain.
func (e StorageError) Unwrap() error { return ErrStorage }

// IntegrityError reports a checksum mismatch on snapshot load. It propagates
// as a storage failure but is logged distinctly for operators.
type IntegrityError struct {
	ID       string
	Expected string
	Actual   string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("snapshot %s: checksum mismatch (expected %s, got %s)", e.ID, e.Expected, e.Actual)
}

// Unwrap keeps integrity failures on the storage error chain so callers can
// treat them uniformly while operators see the distinct type.
func (e IntegrityError) Unwrap() error { return ErrStorage }

// ThresholdExceededError reports a subsystem error counter crossing its
// maximum, which forces routing back to the legacy implementation.
type ThresholdExceededError struct {
	Subsystem ID
	Count     int
	Max       int
}

func (e ThresholdExceededError) Error() string {
	return fmt.Sprintf("subsystem %s: error count %d crossed threshold %d, migration disabled", e.Subsystem, e.Count, e.Max)
}
