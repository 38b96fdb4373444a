// SPDX-License-Identifier: GPL-2.0-or-later

// Package avidump captures synthetic emulator output into segmented AVI files.
package avidump

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"avidump/pkg/dumper"
	"avidump/pkg/log"
	"avidump/pkg/pixfmt"
	"avidump/pkg/storage"
	"avidump/pkg/system"
	"avidump/pkg/testsrc"

	"golang.org/x/sync/errgroup"
)

// Run parses the flags and runs a capture until the frame
// count is reached or the process is interrupted.
func Run() error {
	configFlag := flag.String("config", "", "path to avidump.yaml")
	framesFlag := flag.Int("frames", 0, "number of frames to capture, 0 captures until interrupted")
	flag.Parse()

	if *configFlag == "" {
		flag.Usage()
		return nil
	}

	configPath, err := filepath.Abs(*configFlag)
	if err != nil {
		return fmt.Errorf("absolute path of config: %w", err)
	}

	wg := &sync.WaitGroup{}
	app, err := newApp(configPath, wg, os.Stdout)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = app.run(ctx, *framesFlag)
	wg.Wait()
	return err
}

// App is the capture application.
type App struct {
	WG      *sync.WaitGroup
	Logger  *log.Logger
	logDB   *log.DB
	Config  *storage.Config
	Storage *storage.Manager
	System  *system.System

	stdout           io.Writer
	progressInterval time.Duration
}

func newApp(configPath string, wg *sync.WaitGroup, stdout io.Writer) (*App, error) {
	configYAML, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config, err := storage.NewConfig(configPath, configYAML)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := log.NewLogger()

	var logDB *log.DB
	if config.LogDB != "" {
		logDB = log.NewDB(config.LogDB, wg)
	}

	storageManager := storage.NewManager(config.OutputDir, config.Prefix, config.MinFreeBytes)

	return &App{
		WG:      wg,
		Logger:  logger,
		logDB:   logDB,
		Config:  config,
		Storage: storageManager,
		System:  system.New(config.OutputDir, logger),

		stdout:           stdout,
		progressInterval: 5 * time.Second,
	}, nil
}

// Parameters returns the dumper configuration described by the config file.
func (app *App) Parameters() (dumper.Config, error) {
	c := app.Config
	pixelFormat, err := pixfmt.ParsePixelFormat(c.PixelFormat)
	if err != nil {
		return dumper.Config{}, err
	}
	sampleFormat, err := pixfmt.ParseSampleFormat(c.SampleFormat)
	if err != nil {
		return dumper.Config{}, err
	}
	if c.SampleRate < 0 || c.Channels < 0 || c.BitsPerSample < 0 ||
		c.FPSNum < 0 || c.FPSDenom < 0 {
		return dumper.Config{}, fmt.Errorf("%w: negative rate", dumper.ErrInvalidParameter)
	}

	config := dumper.Config{
		Global: dumper.GlobalParameters{
			SampleRate:    uint32(c.SampleRate),
			Channels:      uint16(c.Channels),
			BitsPerSample: uint16(c.BitsPerSample),
		},
		Segment: dumper.SegmentParameters{
			FPSNum:           uint32(c.FPSNum),
			FPSDenom:         uint32(c.FPSDenom),
			PixelFormat:      pixelFormat,
			Width:            c.Width,
			Height:           c.Height,
			Stride:           c.Width * pixelFormat.BytesPerPixel(),
			KeyframeInterval: c.KeyframeInterval,
			CompressionLevel: c.CompressionLevel,
			MaxFrames:        c.MaxFramesPerSegment,
		},
		SampleFormat:  sampleFormat,
		CreateSegment: app.Storage.CreateSegment,
		Logger:        app.Logger,
	}
	if c.Sidecar {
		config.CreateSidecar = app.Storage.CreateSidecar
	}
	return config, nil
}

func (app *App) run(ctx context.Context, frames int) error {
	logCtx, logCancel := context.WithCancel(context.Background())
	defer logCancel()

	go app.Logger.Start(logCtx)
	go app.Logger.LogToWriter(logCtx, app.stdout)
	// Subscribe blocks until the logger is running.
	_, cancelFeed := app.Logger.Subscribe()
	cancelFeed()

	if app.logDB != nil {
		if err := app.logDB.Init(logCtx); err != nil {
			// Continue even if log database is corrupt.
			app.Logger.Error().Src("app").Msgf("could not initialize log database: %v", err)
		} else {
			go app.logDB.SaveLogs(logCtx, app.Logger)
		}
	}

	if err := app.Storage.Prepare(); err != nil {
		return err
	}

	config, err := app.Parameters()
	if err != nil {
		return err
	}
	src, err := testsrc.New(testsrc.Config{
		PixelFormat:  config.Segment.PixelFormat,
		Width:        config.Segment.Width,
		Height:       config.Segment.Height,
		FPSNum:       config.Segment.FPSNum,
		FPSDenom:     config.Segment.FPSDenom,
		SampleFormat: config.SampleFormat,
		SampleRate:   config.Global.SampleRate,
		Channels:     int(config.Global.Channels),
	})
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	d, err := dumper.New(config)
	if err != nil {
		return err
	}

	go app.System.StatusLoop(logCtx)

	app.Logger.Info().Src("app").Msgf("capturing into %v", app.Storage.Dir())
	captured, err := app.capture(ctx, d, src, frames)
	if err != nil {
		app.Logger.Error().Src("app").Msgf("capture failed: %v", err)
		return err
	}

	segments, err := app.Storage.ListSegments()
	if err != nil {
		return err
	}
	app.Logger.Info().Src("app").Msgf("captured %d frames into %d segments", captured, len(segments))
	return nil
}

// capture feeds the source into the dumper while a second
// goroutine reports progress. The dumper is always ended.
func (app *App) capture(
	ctx context.Context,
	d *dumper.Dumper,
	src *testsrc.Source,
	frames int,
) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var captured atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		for frames == 0 || captured.Load() < int64(frames) {
			if ctx.Err() != nil {
				return nil
			}
			video, audio := src.Next()
			if err := d.Audio(audio); err != nil {
				return err
			}
			if err := d.Video(video); err != nil {
				return err
			}
			captured.Add(1)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(app.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.Logger.Debug().Src("app").Msgf("%d frames captured", captured.Load())
			case <-ctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	if endErr := d.End(); endErr != nil && !errors.Is(err, dumper.ErrWorkerFailed) {
		err = errors.Join(err, endErr)
	}
	return captured.Load(), err
}
