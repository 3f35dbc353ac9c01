// Package blob re-exports the payload storage abstractions so call sites
// depend on one import path regardless of the backing driver.
package blob

import (
	"agrobridge/internal/blob/core"
)

type (
	// Driver identifies a payload storage backend driver.
	Driver = core.Driver
	// PutOptions configures a payload write.
	PutOptions = core.PutOptions
	// Info describes stored payload metadata.
	Info = core.Info
	// Store is the interface for payload storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation isn't supported by a driver.
var ErrUnsupported = core.ErrUnsupported

// ErrNotFound indicates no payload exists for the requested key.
var ErrNotFound = core.ErrNotFound
