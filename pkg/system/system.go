// SPDX-License-Identifier: GPL-2.0-or-later

// Package system reports the resource usage of the capture host.
package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"avidump/pkg/log"
	"avidump/pkg/storage"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status stores system status.
type Status struct {
	CPUUsage int // Percent.
	RAMUsage int // Percent.

	DiskFree          uint64
	DiskFreeFormatted string
}

type (
	cpuFunc  func(context.Context, time.Duration, bool) ([]float64, error)
	ramFunc  func() (*mem.VirtualMemoryStat, error)
	diskFunc func(string) (*disk.UsageStat, error)
)

// System samples cpu, ram and output disk usage.
type System struct {
	cpu  cpuFunc
	ram  ramFunc
	disk diskFunc

	dir      string
	duration time.Duration

	status Status
	logger *log.Logger
	mu     sync.Mutex
	o      sync.Once
}

// New returns a System that watches the disk of dir.
func New(dir string, logger *log.Logger) *System {
	return &System{
		cpu:  cpu.PercentWithContext,
		ram:  mem.VirtualMemory,
		disk: disk.Usage,

		dir:      dir,
		duration: 10 * time.Second,

		logger: logger,
	}
}

func (s *System) update(ctx context.Context) error {
	cpuUsage, err := s.cpu(ctx, s.duration, false)
	if err != nil {
		return fmt.Errorf("cpu usage: %w", err)
	}
	if len(cpuUsage) == 0 {
		return fmt.Errorf("cpu usage: no result")
	}
	ramUsage, err := s.ram()
	if err != nil {
		return fmt.Errorf("ram usage: %w", err)
	}
	diskUsage, err := s.disk(s.dir)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}

	s.mu.Lock()
	s.status = Status{
		CPUUsage:          int(cpuUsage[0]),
		RAMUsage:          int(ramUsage.UsedPercent),
		DiskFree:          diskUsage.Free,
		DiskFreeFormatted: storage.FormatBytes(diskUsage.Free),
	}
	s.mu.Unlock()

	return nil
}

// StatusLoop updates and logs the system status until
// the context is canceled. The cpu sample blocks for
// the update interval.
func (s *System) StatusLoop(ctx context.Context) {
	s.o.Do(func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.update(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn().Src("system").Msgf("could not update system status: %v", err)
				select {
				case <-time.After(s.duration):
				case <-ctx.Done():
					return
				}
				continue
			}
			status := s.Status()
			s.logger.Debug().Src("system").Msgf("cpu %d%%, ram %d%%, %v free",
				status.CPUUsage, status.RAMUsage, status.DiskFreeFormatted)
		}
	})
}

// Status returns the last sampled status.
func (s *System) Status() Status {
	defer s.mu.Unlock()
	s.mu.Lock()
	return s.status
}
