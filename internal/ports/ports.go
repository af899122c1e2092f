package ports

import (
	"context"
	"time"

	"DiagnosisWorker/internal/domain"
)

// ScanRepository is the sole reader/writer of scan status for the worker.
type ScanRepository interface {
	// ListPending returns every scan whose status is pending at query time.
	ListPending(ctx context.Context) ([]domain.PendingScan, error)
	// Update writes exactly the outcome's fields on a pending scan.
	Update(ctx context.Context, scanID string, outcome domain.Outcome) error
}

// URLSigner turns a stored object path into a time-limited retrieval URL.
type URLSigner interface {
	SignURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// ScanFetcher downloads the raw bytes behind a scan's file path.
type ScanFetcher interface {
	Fetch(ctx context.Context, filePath string) ([]byte, error)
}

// ImageDecoder converts image bytes into the model's input tensor.
type ImageDecoder interface {
	Decode(data []byte) (domain.Tensor, error)
}

// Classifier maps an input tensor to one probability per class.
type Classifier interface {
	Classify(ctx context.Context, input domain.Tensor) ([]float32, error)
}

// OutcomePublisher announces persisted outcomes to downstream systems.
type OutcomePublisher interface {
	Publish(ctx context.Context, event domain.DiagnosisEvent) error
}

// Clock controls time for the poll loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}
