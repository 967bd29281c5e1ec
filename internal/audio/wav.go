// ABOUTME: Minimal RIFF/WAVE reader for 16-bit PCM show audio
// ABOUTME: Exposes the data chunk as an io.ReadSeeker for playback
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedAudio marks audio files the player cannot decode.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// wavInfo describes the PCM stream found in a WAV file.
type wavInfo struct {
	sampleRate int
	channels   int
	dataLen    int64
	dataOffset int64
}

// parseWAV walks the RIFF chunks of r and returns the PCM layout.
// Only uncompressed 16-bit PCM is accepted, matching what the
// authoring tool exports.
func parseWAV(r io.ReadSeeker) (*wavInfo, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short RIFF header", ErrUnsupportedAudio)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedAudio)
	}

	info := &wavInfo{}
	sawFmt := false

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too small", ErrUnsupportedAudio)
			}
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(fmtChunk[0:2])
			channels := binary.LittleEndian.Uint16(fmtChunk[2:4])
			sampleRate := binary.LittleEndian.Uint32(fmtChunk[4:8])
			bitsPerSample := binary.LittleEndian.Uint16(fmtChunk[14:16])

			if audioFormat != 1 {
				return nil, fmt.Errorf("%w: compressed WAV (format %d)", ErrUnsupportedAudio, audioFormat)
			}
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("%w: %d-bit WAV, need 16-bit", ErrUnsupportedAudio, bitsPerSample)
			}
			info.sampleRate = int(sampleRate)
			info.channels = int(channels)
			sawFmt = true

			if skip := size - 16; skip > 0 {
				if _, err := r.Seek(skip+skip%2, io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("skip fmt extension: %w", err)
				}
			}

		case "data":
			off, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, fmt.Errorf("locate data chunk: %w", err)
			}
			info.dataOffset = off
			info.dataLen = size
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip data chunk: %w", err)
			}

		default:
			// Chunks are word-aligned; odd sizes carry a pad byte.
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}

	if !sawFmt || info.dataLen == 0 {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrUnsupportedAudio)
	}
	if info.sampleRate <= 0 || info.channels <= 0 {
		return nil, fmt.Errorf("%w: bad fmt values", ErrUnsupportedAudio)
	}
	return info, nil
}
