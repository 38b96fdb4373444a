// SPDX-License-Identifier: GPL-2.0-or-later

package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// File is an open segment or sidecar file.
type File interface {
	io.Writer
	io.Seeker
	io.Closer
}

// ErrDiskFull free space is below the configured minimum.
var ErrDiskFull = errors.New("not enough free disk space")

type diskUsageFunc func(path string) (*disk.UsageStat, error)

type createFileFunc func(name string) (File, error)

// Manager names and creates the files of a capture.
type Manager struct {
	dir          string
	prefix       string
	minFreeBytes uint64

	diskUsage  diskUsageFunc
	createFile createFileFunc
}

// NewManager returns new manager.
func NewManager(dir string, prefix string, minFreeBytes uint64) *Manager {
	return &Manager{
		dir:          dir,
		prefix:       prefix,
		minFreeBytes: minFreeBytes,

		diskUsage:  disk.Usage,
		createFile: createFile,
	}
}

func createFile(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
}

// Dir returns the output directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Prepare creates the output directory.
func (m *Manager) Prepare() error {
	err := os.MkdirAll(m.dir, 0o700)
	if err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create output directory: %v: %w", m.dir, err)
	}
	return nil
}

// SegmentName returns the file name of a segment.
func SegmentName(prefix string, major, minor int) string {
	return fmt.Sprintf("%s_%04d_%04d.avi", prefix, major, minor)
}

// SegmentPath returns the full path of a segment.
func (m *Manager) SegmentPath(major, minor int) string {
	return filepath.Join(m.dir, SegmentName(m.prefix, major, minor))
}

// SidecarPath returns the full path of the raw audio sidecar.
func (m *Manager) SidecarPath() string {
	return filepath.Join(m.dir, m.prefix+".raws")
}

// CreateSegment creates or truncates a segment file.
func (m *Manager) CreateSegment(major, minor int) (File, error) {
	return m.create(m.SegmentPath(major, minor))
}

// CreateSidecar creates or truncates the sidecar file.
func (m *Manager) CreateSidecar() (File, error) {
	return m.create(m.SidecarPath())
}

func (m *Manager) create(path string) (File, error) {
	if err := m.checkFreeSpace(); err != nil {
		return nil, fmt.Errorf("%v: %w", filepath.Base(path), err)
	}
	file, err := m.createFile(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return file, nil
}

func (m *Manager) checkFreeSpace() error {
	if m.minFreeBytes == 0 {
		return nil
	}
	usage, err := m.diskUsage(m.dir)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}
	if usage.Free < m.minFreeBytes {
		return fmt.Errorf("%w: %v free, %v required",
			ErrDiskFull, FormatBytes(usage.Free), FormatBytes(m.minFreeBytes))
	}
	return nil
}

// Segment is a segment file found in the output directory.
type Segment struct {
	Major int
	Minor int
	Path  string
}

// ListSegments returns the segments of the capture in order.
func (m *Manager) ListSegments() ([]Segment, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %v: %w", m.dir, err)
	}

	var segments []Segment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		major, minor, ok := parseSegmentName(m.prefix, entry.Name())
		if !ok {
			continue
		}
		segments = append(segments, Segment{
			Major: major,
			Minor: minor,
			Path:  filepath.Join(m.dir, entry.Name()),
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		if segments[i].Major != segments[j].Major {
			return segments[i].Major < segments[j].Major
		}
		return segments[i].Minor < segments[j].Minor
	})
	return segments, nil
}

// Input: "capture_0001_0002.avi" Output: 1, 2, true
func parseSegmentName(prefix, name string) (int, int, bool) {
	name, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return 0, 0, false
	}
	name, ok = strings.CutSuffix(name, ".avi")
	if !ok {
		return 0, 0, false
	}
	majorStr, minorStr, ok := strings.Cut(name, "_")
	if !ok || len(majorStr) < 4 || len(minorStr) < 4 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return 0, 0, false
	}
	return major, minor, true
}

const (
	kilobyte float64 = 1000
	megabyte         = kilobyte * 1000
	gigabyte         = megabyte * 1000
	terabyte         = gigabyte * 1000
)

// FormatBytes returns a short human readable size.
func FormatBytes(bytes uint64) string {
	size := float64(bytes)
	switch {
	case size < 1000*megabyte:
		return fmt.Sprintf("%.0fMB", size/megabyte)
	case size < 10*gigabyte:
		return fmt.Sprintf("%.2fGB", size/gigabyte)
	case size < 100*gigabyte:
		return fmt.Sprintf("%.1fGB", size/gigabyte)
	case size < 1000*gigabyte:
		return fmt.Sprintf("%.0fGB", size/gigabyte)
	case size < 10*terabyte:
		return fmt.Sprintf("%.2fTB", size/terabyte)
	case size < 100*terabyte:
		return fmt.Sprintf("%.1fTB", size/terabyte)
	default:
		return fmt.Sprintf("%.0fTB", size/terabyte)
	}
}
