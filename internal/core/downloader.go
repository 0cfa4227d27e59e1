package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"nexusbridge/internal/domain"
)

const (
	downloadMaxAttempts = 3
	downloadRetryPause  = 2 * time.Second

	// lowSpeedWindow / lowSpeedFloor: abort a transfer that stays under
	// 1 KB/s for a full minute. Stalled CDN connections otherwise hold a
	// worker slot until the overall timeout.
	lowSpeedWindow = 60 * time.Second
	lowSpeedFloor  = 1024 // bytes per second
)

// ErrLowSpeed marks a transfer aborted for being persistently too slow
var ErrLowSpeed = errors.New("transfer too slow")

// ProgressFunc receives byte counts during a download. total is 0 when the
// server did not send a Content-Length.
type ProgressFunc func(downloaded, total int64)

// Downloader performs HTTP file downloads with retry, progress reporting at
// five-percent granularity and a low-speed abort.
type Downloader struct {
	httpClient *http.Client
}

// NewDownloader creates a Downloader. A nil httpClient gets a transport with
// a 30 s connect timeout and no overall deadline (large archives may stream
// for longer than any fixed budget; the low-speed abort bounds stalls).
func NewDownloader(httpClient *http.Client) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &Downloader{httpClient: httpClient}
}

// Download fetches url to destPath without progress reporting
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	return d.DownloadWithProgress(ctx, url, destPath, nil)
}

// DownloadWithProgress fetches url to destPath in up to 3 attempts, retrying
// transient failures after a 2 s pause. The file lands under a temporary name and
// is renamed into place only on success, so partial downloads never satisfy
// a later size check.
func (d *Downloader) DownloadWithProgress(ctx context.Context, url, destPath string, progress ProgressFunc) error {
	var lastErr error
	for attempt := 1; attempt <= downloadMaxAttempts; attempt++ {
		err := d.downloadOnce(ctx, url, destPath, progress)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryableDownload(err) || attempt == downloadMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("download: %w", ctx.Err())
		case <-time.After(downloadRetryPause):
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrDownloadFailed, lastErr)
}

// httpStatusError carries an HTTP status code for retry decisions
type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP status %d", e.code)
}

func isRetryableDownload(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return httpErr.code == http.StatusRequestTimeout ||
			httpErr.code == http.StatusTooManyRequests ||
			httpErr.code >= 500
	}
	if errors.Is(err, ErrLowSpeed) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (d *Downloader) downloadOnce(ctx context.Context, url, destPath string, progress ProgressFunc) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &httpStatusError{code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tempPath := destPath + ".part"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	removeTemp := true
	defer func() {
		file.Close()
		if removeTemp {
			os.Remove(tempPath)
		}
	}()

	reader := &progressReader{
		reader:      resp.Body,
		total:       resp.ContentLength,
		progress:    progress,
		windowStart: time.Now(),
	}

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("downloading file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	removeTemp = false
	return nil
}

// progressReader tracks bytes, reports progress at >=5% steps and aborts a
// transfer that stays below the low-speed floor for the whole window.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	progress   ProgressFunc

	lastReportedPct   int64
	lastReportedBytes int64

	windowStart time.Time
	windowBytes int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.downloaded += int64(n)
		r.windowBytes += int64(n)

		elapsed := time.Since(r.windowStart)
		if elapsed >= time.Second {
			if float64(r.windowBytes)/elapsed.Seconds() >= lowSpeedFloor {
				r.windowStart = time.Now()
				r.windowBytes = 0
			} else if elapsed >= lowSpeedWindow {
				return n, fmt.Errorf("%w: under %d B/s for %s", ErrLowSpeed, lowSpeedFloor, lowSpeedWindow)
			}
		}

		if r.progress != nil {
			if r.total > 0 {
				pct := r.downloaded * 100 / r.total
				if pct >= r.lastReportedPct+5 || r.downloaded == r.total {
					r.lastReportedPct = pct
					r.progress(r.downloaded, r.total)
				}
			} else if r.downloaded >= r.lastReportedBytes+5<<20 {
				r.lastReportedBytes = r.downloaded
				r.progress(r.downloaded, 0)
			}
		}
	}
	return n, err
}
