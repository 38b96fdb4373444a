// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reader errors.
var (
	ErrNotAVI         = errors.New("not a RIFF AVI file")
	ErrMissingChunk   = errors.New("missing chunk")
	ErrIndexMismatch  = errors.New("index does not match data")
	ErrSizeMismatch   = errors.New("declared size does not match file size")
	ErrUnexpectedList = errors.New("unexpected list")
)

// Reader reads a finished segment.
type Reader struct {
	in io.ReadSeeker

	// File offset of the movi list type.
	moviPos int64

	Structure Structure
}

// NewReader parses the headers and the index.
func NewReader(in io.ReadSeeker, fileSize int64) (*Reader, error) {
	r := &Reader{in: in}

	id, size, err := r.readChunkHeader()
	if err != nil {
		return nil, err
	}
	typ, err := r.readFourCC()
	if err != nil {
		return nil, err
	}
	if id != FourCCRIFF || typ != FourCCAVI {
		return nil, ErrNotAVI
	}
	if int64(size)+8 != fileSize {
		return nil, fmt.Errorf("%w: %d+8 != %d", ErrSizeMismatch, size, fileSize)
	}

	if err := r.readHdrl(); err != nil {
		return nil, fmt.Errorf("read hdrl: %w", err)
	}

	id, size, err = r.readChunkHeader()
	if err != nil {
		return nil, err
	}
	typ, err = r.readFourCC()
	if err != nil {
		return nil, err
	}
	if id != FourCCLIST || typ != FourCCmovi {
		return nil, fmt.Errorf("%w: movi", ErrMissingChunk)
	}
	r.moviPos = 12 + int64(r.Structure.hdrl().Size()) + 8
	r.Structure.Movi.PayloadSize = int(size) - 4

	if _, err := in.Seek(r.moviPos+int64(size), io.SeekStart); err != nil {
		return nil, err
	}
	id, size, err = r.readChunkHeader()
	if err != nil {
		return nil, fmt.Errorf("read idx1: %w", err)
	}
	if id != FourCCidx1 {
		return nil, fmt.Errorf("%w: idx1", ErrMissingChunk)
	}
	body, err := r.readBody(size)
	if err != nil {
		return nil, err
	}
	if err := r.Structure.Idx1.Unmarshal(body); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Reader) readHdrl() error {
	id, _, err := r.readChunkHeader()
	if err != nil {
		return err
	}
	typ, err := r.readFourCC()
	if err != nil {
		return err
	}
	if id != FourCCLIST || typ != FourCChdrl {
		return fmt.Errorf("%w: hdrl", ErrMissingChunk)
	}

	if err := r.readLeaf(FourCCavih, r.Structure.Avih.Unmarshal); err != nil {
		return err
	}
	if err := r.readStrl(r.Structure.VideoStrh.Unmarshal, r.Structure.VideoStrf.Unmarshal); err != nil {
		return fmt.Errorf("video: %w", err)
	}
	if err := r.readStrl(r.Structure.AudioStrh.Unmarshal, r.Structure.AudioStrf.Unmarshal); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	return nil
}

func (r *Reader) readStrl(strh, strf func([]byte) error) error {
	id, _, err := r.readChunkHeader()
	if err != nil {
		return err
	}
	typ, err := r.readFourCC()
	if err != nil {
		return err
	}
	if id != FourCCLIST || typ != FourCCstrl {
		return fmt.Errorf("%w: %v", ErrUnexpectedList, typ)
	}
	if err := r.readLeaf(FourCCstrh, strh); err != nil {
		return err
	}
	return r.readLeaf(FourCCstrf, strf)
}

func (r *Reader) readLeaf(want FourCC, unmarshal func([]byte) error) error {
	id, size, err := r.readChunkHeader()
	if err != nil {
		return err
	}
	if id != want {
		return fmt.Errorf("%w: %v got %v", ErrMissingChunk, want, id)
	}
	body, err := r.readBody(size)
	if err != nil {
		return err
	}
	return unmarshal(body)
}

func (r *Reader) readChunkHeader() (FourCC, uint32, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r.in, buf[:]); err != nil {
		return FourCC{}, 0, err
	}
	var id FourCC
	copy(id[:], buf[:4])
	return id, binary.LittleEndian.Uint32(buf[4:]), nil
}

func (r *Reader) readFourCC() (FourCC, error) {
	var id FourCC
	_, err := io.ReadFull(r.in, id[:])
	return id, err
}

func (r *Reader) readBody(size uint32) ([]byte, error) {
	body := make([]byte, size+size&1)
	if _, err := io.ReadFull(r.in, body); err != nil {
		return nil, err
	}
	return body[:size], nil
}

// Index returns the index entries.
func (r *Reader) Index() []IndexEntry {
	return r.Structure.Idx1.Entries
}

// ReadChunk reads the payload of an indexed chunk and checks
// that the chunk header matches the index entry.
func (r *Reader) ReadChunk(e IndexEntry) ([]byte, error) {
	if _, err := r.in.Seek(r.moviPos+int64(e.Offset), io.SeekStart); err != nil {
		return nil, err
	}
	id, size, err := r.readChunkHeader()
	if err != nil {
		return nil, err
	}
	if id != e.ChunkID || size != e.Length {
		return nil, fmt.Errorf("%w: offset %d: %v/%d != %v/%d",
			ErrIndexMismatch, e.Offset, id, size, e.ChunkID, e.Length)
	}
	return r.readBody(size)
}
