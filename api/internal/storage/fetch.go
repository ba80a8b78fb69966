package storage

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

	"ui-annotator/api/internal/logger"
)

const maxDownload = 32 << 20

// Signer turns a storage path into a URL valid for at least expiresIn.
type Signer interface {
	Sign(ctx context.Context, path string, expiresIn time.Duration) (string, error)
}

// HTTPSigner signs paths with a Supabase-style storage API:
// POST {BaseURL}/object/sign/{Bucket}/{path} {"expiresIn": seconds}.
type HTTPSigner struct {
	BaseURL string
	Key     string
	Bucket  string
	httpc   *http.Client
}

func NewHTTPSigner(baseURL, key, bucket string) *HTTPSigner {
	return &HTTPSigner{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Key:     key,
		Bucket:  bucket,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPSigner) Sign(ctx context.Context, path string, expiresIn time.Duration) (string, error) {
	body, _ := json.Marshal(map[string]int{"expiresIn": int(expiresIn.Seconds())})
	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", s.BaseURL, url.PathEscape(s.Bucket), escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Key)
	req.Header.Set("apikey", s.Key)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("sign %s %d: %s", path, resp.StatusCode, strings.TrimSpace(string(x)))
	}
	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sign %s: %w", path, err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("sign %s: empty signedURL", path)
	}
	if strings.HasPrefix(out.SignedURL, "http://") || strings.HasPrefix(out.SignedURL, "https://") {
		return out.SignedURL, nil
	}
	return s.BaseURL + "/" + strings.TrimLeft(out.SignedURL, "/"), nil
}

func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// Fetcher downloads screenshots by storage path, reusing signed URLs.
type Fetcher struct {
	Cache  *URLCache
	Signer Signer
	// SignFor is the lifetime requested from the signer; it should outlive the cache TTL.
	SignFor time.Duration
	httpc   *http.Client
}

func NewFetcher(cache *URLCache, signer Signer, signFor time.Duration) *Fetcher {
	return &Fetcher{
		Cache:   cache,
		Signer:  signer,
		SignFor: signFor,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

// URL returns a signed URL for path, from the cache when still valid.
func (f *Fetcher) URL(ctx context.Context, path string) (string, error) {
	if u, ok := f.Cache.Get(path); ok {
		return u, nil
	}
	u, err := f.Signer.Sign(ctx, path, f.SignFor)
	if err != nil {
		return "", err
	}
	f.Cache.Set(path, u)
	return u, nil
}

// Fetch downloads the object at path. A rejected cached URL is re-signed once.
func (f *Fetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	u, err := f.URL(ctx, path)
	if err != nil {
		return nil, err
	}
	b, status, err := f.download(ctx, u)
	if err != nil && (status == http.StatusBadRequest || status == http.StatusForbidden) {
		logger.Info("storage", "signed url for %s rejected (%d), re-signing", path, status)
		f.Cache.Delete(path)
		if u, err = f.URL(ctx, path); err != nil {
			return nil, err
		}
		b, _, err = f.download(ctx, u)
	}
	return b, err
}

func (f *Fetcher) download(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if len(b) > maxDownload {
		return nil, resp.StatusCode, fmt.Errorf("object larger than %d bytes", maxDownload)
	}
	return b, resp.StatusCode, nil
}
