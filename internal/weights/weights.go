// Package weights resolves and fetches the pretrained model weights.
package weights

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/envvar"
	"github.com/neurite-lab/tractus/internal/xfs"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 10 * time.Minute
	markerSuffix      = ".tractus-source"
)

// Manager resolves pretrained weights on disk, downloading them when missing.
type Manager struct {
	dir    string
	client *http.Client
}

// NewManager creates a weights manager for the resolved weights directory.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		dir:    ResolveDir(cfg),
		client: &http.Client{},
	}
}

// NewManagerWithClient creates a weights manager with a custom HTTP client.
func NewManagerWithClient(dir string, client *http.Client) *Manager {
	return &Manager{dir: dir, client: client}
}

// Dir returns the weights directory.
func (m *Manager) Dir() string {
	return m.dir
}

// ResolveDir returns the weights directory.
// Precedence:
// 1. TRACTUS_WEIGHTS_PATH environment variable.
// 2. WeightsDir field in the config.
// 3. Default weights path.
func ResolveDir(cfg *config.Config) string {
	if p := os.Getenv(envvar.TractusWeightsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.WeightsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.WeightsDir)
	}
	return xfs.ExpandTilde(config.DefaultWeightsPath())
}

// Resolve returns the local path of the weights for a profile, downloading
// them first if they are missing or were fetched from a different URL.
func (m *Manager) Resolve(ctx context.Context, profile *config.Profile) (string, error) {
	if err := xfs.EnsureDir(m.dir); err != nil {
		return "", err
	}

	path := filepath.Join(m.dir, profile.WeightsFile)
	markerPath := path + markerSuffix

	if _, err := os.Stat(path); err == nil {
		if !m.shouldRedownload(markerPath, profile.WeightsURL) {
			slog.Info("Weights already downloaded and up-to-date (marker match), skipping", "weights", profile.WeightsFile, "path", path)
			return path, nil
		}
	}

	if err := m.download(ctx, profile.WeightsURL, path); err != nil {
		return "", err
	}

	if err := os.WriteFile(markerPath, []byte(profile.WeightsURL), 0o644); err != nil {
		slog.Warn("Failed to write download marker", "path", markerPath, "error", err)
	}

	return path, nil
}

// download fetches url into path with retries, writing through a temp file so
// a partial download never masquerades as valid weights.
func (m *Manager) download(ctx context.Context, url, path string) error {
	var lastErr error
	for attempt := 0; attempt < defaultMaxRetries; attempt++ {
		if attempt > 0 {
			slog.Info("Retrying download", "url", url, "attempt", attempt+1, "last_error", lastErr)
			time.Sleep(defaultRetryDelay)
		} else {
			slog.Info("Downloading pretrained weights", "url", url, "path", path)
		}

		err := m.fetchOnce(ctx, url, path)
		if err == nil {
			slog.Info("Weights downloaded successfully", "path", path, "attempt", attempt+1)
			return nil
		}

		lastErr = err
		slog.Error("Failed to download weights", "url", url, "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			return fmt.Errorf("download canceled: %w", ctx.Err())
		}
	}

	return lastErr
}

func (m *Manager) fetchOnce(ctx context.Context, url, path string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write weights: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// shouldRedownload checks if the weights should be redownloaded by comparing
// marker content against the profile URL.
func (m *Manager) shouldRedownload(markerPath, expectedContent string) bool {
	content, err := os.ReadFile(markerPath)
	if err != nil {
		slog.Debug("Marker file missing or unreadable", "path", markerPath, "error", err)
		return true
	}

	if string(content) != expectedContent {
		slog.Info("Weights source changed (marker mismatch), will redownload", "marker_path", markerPath)
		return true
	}

	return false
}
