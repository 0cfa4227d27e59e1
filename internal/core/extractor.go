package core

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mholt/archiver/v4"

	"nexusbridge/internal/domain"
)

// sevenZipNames are the binary names probed, in order, next to the running
// executable and then on PATH.
var sevenZipNames = []string{"7za", "7z", "7zzs"}

// extractTimeout bounds a single 7-Zip invocation; corrupted archives can
// otherwise hang the subprocess indefinitely.
const extractTimeout = 15 * time.Minute

// Extractor unpacks mod archives. 7z/rar go through an external 7-Zip
// binary, zips use archive/zip natively, and when no binary can be found
// extraction falls back to an in-process archiver.
type Extractor struct {
	sevenZipPath string
}

// NewExtractor creates an Extractor. sevenZipPath overrides binary
// discovery when non-empty (from config.yaml).
func NewExtractor(sevenZipPath string) *Extractor {
	return &Extractor{sevenZipPath: sevenZipPath}
}

// Extract unpacks archivePath into destDir, creating it if needed
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(archivePath))
	if ext == ".zip" {
		if err := e.extractZip(archivePath, destDir); err == nil {
			return nil
		}
		// Mis-labelled zips (7z content with a .zip name) fall through to 7-Zip
	}

	if bin := e.findSevenZip(); bin != "" {
		return e.extractSevenZip(ctx, bin, archivePath, destDir)
	}
	return e.extractFallback(ctx, archivePath, destDir)
}

// CanExtract reports whether the filename has a supported archive extension
func (e *Extractor) CanExtract(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip", ".7z", ".rar":
		return true
	}
	return false
}

// findSevenZip locates a 7-Zip binary: configured path first, then each
// known name next to the running executable, then PATH.
func (e *Extractor) findSevenZip() string {
	if e.sevenZipPath != "" {
		if _, err := os.Stat(e.sevenZipPath); err == nil {
			return e.sevenZipPath
		}
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for _, name := range sevenZipNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	for _, name := range sevenZipNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// extractSevenZip shells out: 7z x -y -o<dest> <archive>. -y answers every
// prompt so the subprocess can never block on input.
func (e *Extractor) extractSevenZip(ctx context.Context, bin, archivePath, destDir string) error {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "x", "-y", "-o"+destDir, archivePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: 7z timed out after %v", domain.ErrExtractionFailed, extractTimeout)
		}
		return fmt.Errorf("%w: 7z: %v: %s", domain.ErrExtractionFailed, err, truncateOutput(output))
	}
	return nil
}

func truncateOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}

// extractZip extracts a ZIP archive using archive/zip
func (e *Extractor) extractZip(archivePath, destDir string) (err error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer func() {
		if cerr := r.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing zip: %w", cerr)
		}
	}()

	for _, f := range r.File {
		if err := e.extractZipFile(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) extractZipFile(f *zip.File, destDir string) (err error) {
	destPath, err := sanitizeExtractPath(destDir, f.Name)
	if err != nil {
		return err
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(destPath, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s in archive: %w", f.Name, err)
	}
	defer func() {
		if cerr := rc.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing archive entry %s: %w", f.Name, cerr)
		}
	}()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer func() {
		if cerr := outFile.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", destPath, cerr)
		}
	}()

	if _, err = io.Copy(outFile, rc); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

// extractFallback unpacks with the in-process archiver library. Slower than
// the external binary for large 7z archives but keeps the installer working
// on hosts with no 7-Zip installed.
func (e *Extractor) extractFallback(ctx context.Context, archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	format, input, err := archiver.Identify(ctx, archivePath, file)
	if err != nil {
		return fmt.Errorf("%w: unrecognised format: %v", domain.ErrExtractionFailed, err)
	}
	extractor, ok := format.(archiver.Extractor)
	if !ok {
		return fmt.Errorf("%w: format does not support extraction", domain.ErrExtractionFailed)
	}

	err = extractor.Extract(ctx, input, func(ctx context.Context, f archiver.FileInfo) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.IsDir() {
			return nil
		}
		destPath, err := sanitizeExtractPath(destDir, f.NameInArchive)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.NameInArchive, err)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s in archive: %w", f.NameInArchive, err)
		}
		defer rc.Close()

		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", destPath, err)
		}
		defer out.Close()

		if _, err := io.Copy(out, rc); err != nil {
			return fmt.Errorf("writing %s: %w", destPath, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	return nil
}

// sanitizeExtractPath guards against zip-slip entries escaping destDir.
// Entries with embedded backslashes are kept verbatim here; the normaliser
// relocates them afterwards.
func sanitizeExtractPath(destDir, name string) (string, error) {
	cleaned := filepath.Clean(strings.TrimLeft(name, "/"))
	destPath := filepath.Join(destDir, cleaned)
	prefix := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(destPath)+string(os.PathSeparator), prefix) {
		return "", fmt.Errorf("path traversal detected: %s", name)
	}
	return destPath, nil
}
