package worker

import (
	"time"

	"framecast/internal/pkg/logger"
	"framecast/internal/ports"
	"framecast/internal/worker/processor"
)

type Deps struct {
	Store        processor.Store
	Queue        Queue
	Renderer     processor.Renderer
	SP           ports.StorageProvider
	StorageRoot  string
	CleanupLocal bool
	// PopTimeout bounds each blocking queue read; 0 means 30s.
	PopTimeout time.Duration
	// JobTimeout bounds one render from fetch to DONE; 0 means no limit.
	JobTimeout time.Duration
	Log        *logger.Logger
}
