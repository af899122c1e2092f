package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// ErrTooLarge is returned when a download exceeds the configured size cap.
var ErrTooLarge = errors.New("object exceeds maximum download size")

// FetcherConfig bounds a Fetcher.
type FetcherConfig struct {
	SignedURLExpiry time.Duration
	DownloadTimeout time.Duration
	MaxBytes        int64
	// RateLimit is downloads per second; zero or less disables limiting.
	RateLimit float64
	RateBurst int
}

// Fetcher resolves a scan's file path to a signed URL and downloads it.
type Fetcher struct {
	signer   ports.URLSigner
	client   *http.Client
	limiter  *rate.Limiter
	expiry   time.Duration
	timeout  time.Duration
	maxBytes int64
}

var _ ports.ScanFetcher = (*Fetcher)(nil)

// NewFetcher builds a fetcher. The client should not carry its own timeout;
// DownloadTimeout is applied per request.
func NewFetcher(signer ports.URLSigner, client *http.Client, cfg FetcherConfig) *Fetcher {
	if client == nil {
		client = NewHTTPClient(0)
	}
	if cfg.SignedURLExpiry <= 0 {
		cfg.SignedURLExpiry = 1800 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 15 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 32 << 20
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Fetcher{
		signer:   signer,
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		expiry:   cfg.SignedURLExpiry,
		timeout:  cfg.DownloadTimeout,
		maxBytes: cfg.MaxBytes,
	}
}

// Fetch returns the raw bytes stored at filePath. Signing failures are
// resolution errors; everything after a URL was obtained is a download error.
func (f *Fetcher) Fetch(ctx context.Context, filePath string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, domain.NewError(domain.KindDownload, "rate limit", err)
	}

	signed, err := f.signer.SignURL(ctx, filePath, f.expiry)
	if err != nil {
		return nil, domain.EnsureKind(domain.KindResolution, "sign url", err)
	}

	data, err := f.download(ctx, signed)
	if err != nil {
		return nil, domain.NewError(domain.KindDownload, "download", err)
	}
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, signed string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}
