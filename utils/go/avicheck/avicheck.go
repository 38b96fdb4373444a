// SPDX-License-Identifier: GPL-2.0-or-later

// Package avicheck is a CLI utility that verifies captured segments.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"avidump/pkg/avi"
	"avidump/pkg/cscd"
	"avidump/pkg/storage"
)

const usage = `verify the container and codec headers of captured segments
example: avicheck ./captures capture`

func main() {
	if err := run(os.Args, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) != 3 {
		fmt.Fprintln(out, usage)
		return nil
	}

	segments, err := storage.NewManager(args[1], args[2], 0).ListSegments()
	if err != nil {
		return err
	}

	nSegments := len(segments)
	fmt.Fprintf(out, "Found %v segments.\n", nSegments)

	chResults := make(chan result, nSegments)
	for _, segment := range segments {
		go func(path string) {
			stats, err := check(path)
			chResults <- result{path: path, stats: stats, err: err}
		}(segment.Path)
	}

	var failed int
	for i := 1; i <= nSegments; i++ {
		result := <-chResults
		fmt.Fprintf(out, "[%v/%v]", i, nSegments)
		if result.err != nil {
			failed++
			fmt.Fprintf(out, "[ERR] %v %v\n", result.path, result.err)
			continue
		}
		fmt.Fprintf(out, "[OK] %v %v\n", result.path, result.stats)
	}
	if failed != 0 {
		return fmt.Errorf("%d of %d segments are invalid", failed, nSegments) //nolint:goerr113
	}
	return nil
}

type result struct {
	path  string
	stats stats
	err   error
}

type stats struct {
	width     int
	height    int
	frames    int
	keyframes int
	samples   int
	duration  time.Duration
}

func (s stats) String() string {
	return fmt.Sprintf("%dx%d, %d frames (%d keyframes), %d samples, %v",
		s.width, s.height, s.frames, s.keyframes, s.samples, s.duration)
}

func check(path string) (stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return stats{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return stats{}, err
	}
	r, err := avi.NewReader(file, info.Size())
	if err != nil {
		return stats{}, err
	}

	strf := r.Structure.VideoStrf
	if strf.Compression != cscd.Handler {
		return stats{}, fmt.Errorf("unsupported codec: %v", strf.Compression) //nolint:goerr113
	}
	blockAlign := int(r.Structure.AudioStrf.BlockAlign)

	s := stats{
		width:  int(strf.Width),
		height: int(strf.Height),
	}
	for i, e := range r.Index() {
		switch e.ChunkID {
		case avi.FourCCVideoChunk:
			payload, err := r.ReadChunk(e)
			if err != nil {
				return stats{}, err
			}
			var h cscd.Header
			if err := h.Unmarshal(payload); err != nil {
				return stats{}, fmt.Errorf("frame %d: %w", s.frames, err)
			}
			if s.frames == 0 && !h.Keyframe {
				return stats{}, fmt.Errorf("frame 0: %w", cscd.ErrNoKeyframe)
			}
			if h.BitCount != int(strf.BitCount) {
				return stats{}, fmt.Errorf("frame %d: bit count %d, stream %d", //nolint:goerr113
					s.frames, h.BitCount, strf.BitCount)
			}
			if h.Keyframe != (e.Flags&avi.FlagKeyframe != 0) {
				return stats{}, fmt.Errorf("frame %d: keyframe flag mismatch", s.frames) //nolint:goerr113
			}
			if h.Keyframe {
				s.keyframes++
			}
			s.frames++
		case avi.FourCCAudioChunk:
			if blockAlign == 0 || int(e.Length)%blockAlign != 0 {
				return stats{}, fmt.Errorf("chunk %d: partial audio block", i) //nolint:goerr113
			}
			s.samples += int(e.Length) / blockAlign
		default:
			return stats{}, fmt.Errorf("chunk %d: unexpected id %v", i, e.ChunkID) //nolint:goerr113
		}
	}

	if uint32(s.frames) != r.Structure.Avih.TotalFrames {
		return stats{}, fmt.Errorf("index has %d frames, header %d", //nolint:goerr113
			s.frames, r.Structure.Avih.TotalFrames)
	}
	strh := r.Structure.VideoStrh
	if strh.Rate != 0 {
		s.duration = time.Duration(s.frames) * time.Second * time.Duration(strh.Scale) / time.Duration(strh.Rate)
	}
	return s, nil
}
