package core_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexusbridge/internal/core"
	"nexusbridge/internal/domain"
)

func TestDownloader_Success(t *testing.T) {
	content := []byte("archive-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "sub", "file.7z")
	d := core.NewDownloader(server.Client())
	require.NoError(t, d.Download(context.Background(), server.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// No .part file left behind
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloader_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	d := core.NewDownloader(server.Client())
	require.NoError(t, d.Download(context.Background(), server.URL, dest))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloader_NoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	d := core.NewDownloader(server.Client())
	err := d.Download(context.Background(), server.URL, dest)
	assert.ErrorIs(t, err, domain.ErrDownloadFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloader_ProgressGranularity(t *testing.T) {
	content := make([]byte, 200)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	var reports [][2]int64
	dest := filepath.Join(t.TempDir(), "file.zip")
	d := core.NewDownloader(server.Client())
	err := d.DownloadWithProgress(context.Background(), server.URL, dest, func(downloaded, total int64) {
		reports = append(reports, [2]int64{downloaded, total})
	})
	require.NoError(t, err)

	require.NotEmpty(t, reports)
	last := reports[len(reports)-1]
	assert.Equal(t, int64(200), last[0])
	assert.Equal(t, int64(200), last[1])

	// Reports only at >=5% steps
	var prev int64 = -1
	for i, rep := range reports {
		if i < len(reports)-1 {
			assert.GreaterOrEqual(t, rep[0]*100/rep[1], prev+5)
		}
		prev = rep[0] * 100 / rep[1]
	}
}
