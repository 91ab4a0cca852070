// Package mocks provides mock implementations for testing the bulk job engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the core repository interfaces. Hand-written test doubles for the streaming
// engine live in the jobs subpackage; they carry behavior (backpressure,
// synthetic row sets) that codegen cannot express.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

// Generate mock for BulkJobRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=bulk_job_repository_mock.go github.com/marcbase/marcbase/internal/core BulkJobRepository

// Generate mock for RecordRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=record_repository_mock.go github.com/marcbase/marcbase/internal/core RecordRepository

// Generate mock for FailedPublishRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=failed_publish_repository_mock.go github.com/marcbase/marcbase/internal/core FailedPublishRepository

// Generate mock for ReaperRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=reaper_repository_mock.go github.com/marcbase/marcbase/internal/core ReaperRepository
