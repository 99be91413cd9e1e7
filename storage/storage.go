// Package storage owns the downloaded-video directory: capacity checks
// before downloads and periodic cleanup of files past their retention
// window.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"
)

// ErrLowDiskSpace is returned when the free-disk floor would be violated by
// accepting another download.
var ErrLowDiskSpace = errors.New("insufficient free disk space")

type Service struct {
	dir           string
	retention     time.Duration
	freeDiskFloor uint64
	logger        *zap.Logger
}

func NewService(dir string, retention time.Duration, freeDiskFloor int64, logger *zap.Logger) *Service {
	return &Service{
		dir:           dir,
		retention:     retention,
		freeDiskFloor: uint64(freeDiskFloor),
		logger:        logger,
	}
}

func (s *Service) Dir() string { return s.dir }

// EnsureDir creates the video directory if it does not exist.
func (s *Service) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// EnsureCapacity rejects new downloads when free disk space on the video
// volume is below the configured floor.
func (s *Service) EnsureCapacity() error {
	if s.freeDiskFloor == 0 {
		return nil
	}
	usage, err := disk.Usage(s.dir)
	if err != nil {
		// Capacity checks must not block downloads when the probe itself
		// fails.
		s.logger.Warn("disk usage probe failed", zap.String("dir", s.dir), zap.Error(err))
		return nil
	}
	if usage.Free < s.freeDiskFloor {
		return fmt.Errorf("%w: %d bytes free, need %d", ErrLowDiskSpace, usage.Free, s.freeDiskFloor)
	}
	return nil
}

// Remove deletes a downloaded file. Already-removed files are not an error.
func (s *Service) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep deletes files whose modification time is older than the retention
// window and returns the number removed.
func (s *Service) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read video dir failed", zap.String("dir", s.dir), zap.Error(err))
		}
		return 0
	}

	cutoff := time.Now().Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("remove stale video failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("swept stale videos", zap.Int("removed", removed))
	}
	return removed
}

// SweepLoop runs Sweep on the given interval until the context is
// cancelled.
func (s *Service) SweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
