package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// Signer requests signed download URLs from a Supabase-compatible storage API.
type Signer struct {
	baseURL string
	apiKey  string
	bucket  string
	client  *http.Client
}

var _ ports.URLSigner = (*Signer)(nil)

// NewSigner builds a signer for one bucket. baseURL is the project URL without
// the /storage/v1 suffix.
func NewSigner(baseURL, apiKey, bucket string, client *http.Client) *Signer {
	if client == nil {
		client = NewHTTPClient(15 * time.Second)
	}
	return &Signer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		client:  client,
	}
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
	// Some storage versions spell the key this way.
	SignedUrl string `json:"signedUrl"`
}

// SignURL returns a URL that allows a GET of path for the given expiry.
// Every failure is a resolution error.
func (s *Signer) SignURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	signed, err := s.sign(ctx, path, expiry)
	if err != nil {
		return "", domain.NewError(domain.KindResolution, "sign url", err)
	}
	return signed, nil
}

func (s *Signer) sign(ctx context.Context, path string, expiry time.Duration) (string, error) {
	body, err := json.Marshal(map[string]int64{"expiresIn": int64(expiry / time.Second)})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapeObjectPath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	signed := out.SignedURL
	if signed == "" {
		signed = out.SignedUrl
	}
	if signed == "" {
		return "", fmt.Errorf("object %s: %w", path, domain.ErrNoSignedURL)
	}

	return s.resolve(signed), nil
}

// resolve turns the storage API's relative URL into an absolute one.
func (s *Signer) resolve(signed string) string {
	if strings.HasPrefix(signed, "http://") || strings.HasPrefix(signed, "https://") {
		return signed
	}
	if !strings.HasPrefix(signed, "/") {
		signed = "/" + signed
	}
	return s.baseURL + "/storage/v1" + signed
}

func escapeObjectPath(path string) string {
	parts := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
