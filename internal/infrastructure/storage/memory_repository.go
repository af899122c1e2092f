package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// MemoryRepository keeps scans in process memory. It follows the same status
// rules as PostgresRepository and is used for local runs and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.ScanRecord
	order   []string
	last    time.Time
}

// NewMemoryRepository creates a repository seeded with pending scans in the
// given order. It panics when two seeds share a scan id.
func NewMemoryRepository(seed ...domain.PendingScan) *MemoryRepository {
	r := &MemoryRepository{records: make(map[string]*domain.ScanRecord)}
	for _, scan := range seed {
		if err := r.Create(context.Background(), scan); err != nil {
			panic(fmt.Sprintf("seed memory repository: %v", err))
		}
	}
	return r
}

// Create inserts a new pending scan. Creation times are strictly increasing,
// so listing order matches insertion order.
func (r *MemoryRepository) Create(_ context.Context, scan domain.PendingScan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[scan.ScanID]; exists {
		return fmt.Errorf("scan %s already exists", scan.ScanID)
	}

	createdAt := time.Now().UTC()
	if !createdAt.After(r.last) {
		createdAt = r.last.Add(time.Nanosecond)
	}
	r.last = createdAt

	r.records[scan.ScanID] = &domain.ScanRecord{
		ScanID:    scan.ScanID,
		FilePath:  scan.FilePath,
		Status:    domain.StatusPending,
		CreatedAt: createdAt,
	}
	r.order = append(r.order, scan.ScanID)
	return nil
}

// ListPending returns pending scans, oldest first.
func (r *MemoryRepository) ListPending(ctx context.Context) ([]domain.PendingScan, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewError(domain.KindPersistence, "list pending", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var scans []domain.PendingScan
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Status == domain.StatusPending {
			scans = append(scans, domain.PendingScan{ScanID: rec.ScanID, FilePath: rec.FilePath})
		}
	}
	return scans, nil
}

// Update applies outcome to a pending scan.
func (r *MemoryRepository) Update(ctx context.Context, scanID string, outcome domain.Outcome) error {
	if !outcome.Valid() {
		return domain.NewError(domain.KindPersistence, "update scan",
			fmt.Errorf("invalid outcome status %q", outcome.Status()))
	}
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.KindPersistence, "update scan", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[scanID]
	if !exists || !domain.CanTransition(rec.Status, outcome.Status()) {
		return domain.NewError(domain.KindPersistence, "update scan",
			fmt.Errorf("scan %s: %w", scanID, domain.ErrScanNotPending))
	}

	updated := rec.Apply(outcome)
	r.records[scanID] = &updated
	return nil
}

// Get returns a copy of the stored record.
func (r *MemoryRepository) Get(_ context.Context, scanID string) (domain.ScanRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[scanID]
	if !exists {
		return domain.ScanRecord{}, ErrNotFound
	}
	return *rec, nil
}

var _ ports.ScanRepository = (*MemoryRepository)(nil)
