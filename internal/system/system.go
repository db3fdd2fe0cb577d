// Package system holds host-level helpers: raster buffer pooling, memory
// checks and input discovery.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

var ErrInsufficientMemory = errors.New("system: not enough memory for raster buffer")

// MemoryGuard refuses allocations that would take more than Headroom of the
// memory currently available on the host.
type MemoryGuard struct {
	Headroom  float64
	available func(ctx context.Context) (uint64, error)
}

func NewMemoryGuard(headroom float64) *MemoryGuard {
	return &MemoryGuard{Headroom: headroom, available: availableMemory}
}

func availableMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Reserve checks that need bytes fit. If the host cannot report its memory
// the check passes.
func (g *MemoryGuard) Reserve(ctx context.Context, need uint64) error {
	if g == nil || g.available == nil {
		return nil
	}
	avail, err := g.available(ctx)
	if err != nil {
		return nil
	}
	if float64(need) > float64(avail)*g.Headroom {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientMemory, need, avail)
	}
	return nil
}

type MemoryStats struct {
	Total       uint64
	Available   uint64
	UsedPercent float64
}

func ReadMemoryStats(ctx context.Context) (MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStats{}, err
	}
	return MemoryStats{Total: vm.Total, Available: vm.Available, UsedPercent: vm.UsedPercent}, nil
}

// FindLatest returns the most recently modified file in dir whose extension
// matches one of exts (case-insensitive, with leading dot).
func FindLatest(dir string, exts ...string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no %s files found in %s", strings.Join(exts, "/"), dir)
	}
	return latestFile, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
