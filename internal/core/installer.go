package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"nexusbridge/internal/domain"
	"nexusbridge/internal/fomod"
	"nexusbridge/internal/fsutil"
)

// InstallTask is one archive to unpack into one destination mod folder
type InstallTask struct {
	ModIndex    int
	Ordinal     int // unique per run; keeps scratch paths disjoint
	ModName     string
	ArchivePath string
	DestDir     string
	ScratchDir  string
	Choices     *domain.FomodChoices
	Expected    []string
}

// Installer turns downloaded archives into populated mod folders
type Installer struct {
	Extractor *Extractor
	Printer   *Printer
}

// RunPool executes install tasks over the worker pool. Tasks are
// independent: a failure increments the counter and leaves the destination
// folder intact for inspection, but never halts the pool.
func (ins *Installer) RunPool(ctx context.Context, tasks []InstallTask, pool int) (installed, failed int64) {
	var okCount, failCount atomic.Int64

	eg := new(errgroup.Group)
	eg.SetLimit(pool)

	total := len(tasks)
	for i, task := range tasks {
		eg.Go(func() error {
			if err := ins.RunTask(ctx, task); err != nil {
				failCount.Add(1)
				ins.Printer.Printf("[%d/%d] %s - Failed: %v\n", i+1, total, task.ModName, err)
				return nil
			}
			okCount.Add(1)
			ins.Printer.Printf("[%d/%d] %s - Done!\n", i+1, total, task.ModName)
			return nil
		})
	}
	_ = eg.Wait()
	return okCount.Load(), failCount.Load()
}

// RunTask extracts, normalises and installs a single mod. The scratch
// directory is removed on success and on failure; the destination is never
// removed, even when the install fails part-way.
func (ins *Installer) RunTask(ctx context.Context, task InstallTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer os.RemoveAll(task.ScratchDir)

	if err := ins.Extractor.Extract(ctx, task.ArchivePath, task.ScratchDir); err != nil {
		return err
	}

	configPath := fomod.FindModuleConfig(task.ScratchDir)
	root, err := Normalize(task.ScratchDir, task.ModName, configPath != "")
	if err != nil {
		return fmt.Errorf("normalising archive: %w", err)
	}
	if configPath != "" {
		// FOMOD sources resolve against the folder holding the fomod dir
		root = filepath.Dir(filepath.Dir(configPath))
	}

	if err := os.MkdirAll(task.DestDir, 0755); err != nil {
		return fmt.Errorf("creating mod folder: %w", err)
	}

	switch {
	case configPath != "" && !task.Choices.Empty():
		err = fomod.Install(root, task.DestDir, task.Choices)
	case configPath != "" && len(task.Expected) > 0:
		// FOMOD present but no recorded choices: materialise the file list
		// the collection expects instead of guessing an install
		err = ins.installExpected(root, task.DestDir, task.Expected)
	case configPath != "":
		err = fomod.Install(root, task.DestDir, nil)
	default:
		err = fsutil.MergeMove(root, task.DestDir)
	}
	if err != nil {
		return err
	}

	if err := FlattenData(task.DestDir); err != nil {
		return err
	}
	return nil
}

// installExpected copies the descriptor's expected paths from the archive
// into the destination, preserving their relative locations.
func (ins *Installer) installExpected(root, destDir string, expected []string) error {
	copied := 0
	for _, rel := range expected {
		src, ok := fsutil.ResolveCasePath(root, rel)
		if !ok {
			continue
		}
		info, err := os.Stat(src)
		if err != nil || info.IsDir() {
			continue
		}
		dst := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := fsutil.CopyFile(src, dst); err != nil {
			return err
		}
		copied++
	}
	if copied == 0 {
		return fmt.Errorf("%w: none of the %d expected files were found in the archive",
			domain.ErrFomodInvalid, len(expected))
	}
	return nil
}
