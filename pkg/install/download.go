package install

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
)

// Downloader fetches release assets, retrying transient failures.
type Downloader struct {
	Client *http.Client
	// NewBackOff returns the retry policy for one download. Defaults to
	// exponential backoff with three retries.
	NewBackOff func() backoff.BackOff
}

// Download saves url to dest. Client errors (4xx) are not retried.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	b := backoff.WithContext(d.backOff(), ctx)
	return backoff.Retry(func() error {
		return d.fetch(ctx, url, dest)
	}, b)
}

func (d *Downloader) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("failed to download %s: %s", url, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("failed to download %s: %s", url, resp.Status)
	}

	// Write to a temp file first so a failed attempt never leaves a partial
	// asset at dest.
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	if closeErr != nil {
		return backoff.Permanent(fmt.Errorf("failed to close temp file: %w", closeErr))
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to rename download: %w", err))
	}
	return nil
}

func (d *Downloader) backOff() backoff.BackOff {
	if d.NewBackOff != nil {
		return d.NewBackOff()
	}
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
}
