package storage

import "github.com/OCAP2/vehicledyn/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Car registration
	AddCar(c *core.CarInfo) error

	// Recording
	RecordSample(s *core.Sample) error
	RecordEvent(e *core.CarEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the dashboard.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Dropper is implemented by backends that can discard samples under load.
type Dropper interface {
	Dropped() uint64
}
