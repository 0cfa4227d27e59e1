package core

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nexusbridge/internal/domain"
	"nexusbridge/internal/source/nexusmods"
)

const (
	retryWaves     = 3
	retryWavePause = 2 * time.Second
	retryWaveWidth = 4
)

// PoolSize returns the worker-pool width: at least four workers, scaling
// with the machine, with eight as the fallback when the runtime cannot
// report a CPU count.
func PoolSize() int {
	n := runtime.NumCPU()
	if n <= 0 {
		return 8
	}
	if n < 4 {
		return 4
	}
	return n
}

// LinkResolver resolves CDN download URIs for a Nexus (modId, fileId) pair.
// Implemented by the nexusmods client.
type LinkResolver interface {
	ResolveDownload(ctx context.Context, gameDomain string, modID, fileID int64) ([]string, error)
}

// DownloadCoordinator runs the download phase: a worker pool over the task
// list, then up to three narrower retry waves over whatever failed.
type DownloadCoordinator struct {
	Resolver     LinkResolver
	Downloader   *Downloader
	Printer      *Printer
	GameDomain   string
	DownloadsDir string

	// mu guards the shared result state written back by workers
	mu       sync.Mutex
	archives map[int]string
	failed   []DownloadTask
}

// Run downloads every task and returns the archive path per mod index plus
// the tasks that still failed after all retry waves. Worker errors never
// cross the pool boundary; they are logged and recorded as failures.
func (d *DownloadCoordinator) Run(ctx context.Context, col *domain.Collection, tasks []DownloadTask, pool int) (map[int]string, []DownloadTask) {
	d.archives = make(map[int]string)

	d.runWave(ctx, col, tasks, pool, 0)

	for wave := 1; wave <= retryWaves; wave++ {
		d.mu.Lock()
		pending := d.failed
		d.failed = nil
		d.mu.Unlock()

		if len(pending) == 0 {
			break
		}
		cancelled := false
		select {
		case <-ctx.Done():
			cancelled = true
		case <-time.After(retryWavePause):
		}
		if cancelled {
			d.mu.Lock()
			d.failed = pending
			d.mu.Unlock()
			break
		}

		width := pool
		if width > retryWaveWidth {
			width = retryWaveWidth
		}
		d.Printer.Printf("Retry wave %d: %d archives remaining\n", wave, len(pending))
		d.runWave(ctx, col, pending, width, wave)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.archives, d.failed
}

// runWave fans the tasks out over width workers
func (d *DownloadCoordinator) runWave(ctx context.Context, col *domain.Collection, tasks []DownloadTask, width, wave int) {
	eg := new(errgroup.Group)
	eg.SetLimit(width)

	total := len(tasks)
	for i, task := range tasks {
		eg.Go(func() error {
			if ctx.Err() != nil {
				d.recordFailure(task)
				return nil
			}
			d.Printer.Printf("[%d/%d] Downloading: %s\n", i+1, total, task.Name)
			if err := d.downloadOne(ctx, col, task); err != nil {
				d.Printer.Printf("[%d/%d] %s - Failed: %v\n", i+1, total, task.Name, err)
				d.recordFailure(task)
				return nil
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (d *DownloadCoordinator) recordFailure(task DownloadTask) {
	d.mu.Lock()
	d.failed = append(d.failed, task)
	d.mu.Unlock()
}

// downloadOne resolves the URL if needed and fetches the archive
func (d *DownloadCoordinator) downloadOne(ctx context.Context, col *domain.Collection, task DownloadTask) error {
	mod := &col.Mods[task.ModIndex]

	url := task.URL
	dest := task.DestPath
	if url == "" {
		uris, err := d.Resolver.ResolveDownload(ctx, d.GameDomain, mod.ModID, mod.FileID)
		if err != nil {
			return err
		}
		if len(uris) == 0 {
			return fmt.Errorf("%w: no download link for mod %d file %d", domain.ErrPremiumRequired, mod.ModID, mod.FileID)
		}
		url = uris[0]
		if dest == "" {
			dest = filepath.Join(d.DownloadsDir, domain.ArchiveNameFor(mod, urlExtension(url)))
		}
	}

	url = nexusmods.EncodeURLSpaces(url)

	progress := func(downloaded, totalBytes int64) {
		if totalBytes > 0 {
			d.Printer.Printf("Downloading: %.1f / %.1f MB (%d%%)\n",
				float64(downloaded)/1048576, float64(totalBytes)/1048576,
				downloaded*100/totalBytes)
		} else {
			d.Printer.Printf("Downloading: %.1f MB\n", float64(downloaded)/1048576)
		}
	}

	if err := d.Downloader.DownloadWithProgress(ctx, url, dest, progress); err != nil {
		return err
	}

	d.mu.Lock()
	d.archives[task.ModIndex] = dest
	d.mu.Unlock()
	return nil
}
