// ABOUTME: Audio playback service built on oto
// ABOUTME: Implements the clock.Transport contract with a byte-counted position
package audio

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/Open-Lights/OpenLightsCore/internal/clock"
)

// Player decodes a show's audio track and plays it through oto. It
// satisfies clock.Transport: the scheduler treats its byte-accurate
// position as the authoritative playback clock.
type Player struct {
	log *slog.Logger

	mu       sync.Mutex
	otoCtx   *oto.Context
	player   *oto.Player
	src      *countingSource
	status   clock.Status
	volume   float64
	duration time.Duration
	byteRate int64 // bytes of PCM per second
	frame    int64 // bytes per sample frame
}

// NewPlayer creates an idle player.
func NewPlayer(log *slog.Logger) *Player {
	return &Player{log: log, volume: 1.0}
}

// Open loads an audio file (.wav or .mp3) and prepares it for
// playback, paused at position zero.
func (p *Player) Open(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}

	var (
		src        io.ReadSeeker
		sampleRate int
		channels   int
		totalBytes int64
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		dec, derr := mp3.NewDecoder(f)
		if derr != nil {
			f.Close()
			return fmt.Errorf("%w: %v", ErrUnsupportedAudio, derr)
		}
		// go-mp3 always yields 16-bit stereo.
		src = dec
		sampleRate = dec.SampleRate()
		channels = 2
		totalBytes = dec.Length()

	case ".wav":
		info, werr := parseWAV(f)
		if werr != nil {
			f.Close()
			return werr
		}
		src = io.NewSectionReader(f, info.dataOffset, info.dataLen)
		sampleRate = info.sampleRate
		channels = info.channels
		totalBytes = info.dataLen

	default:
		f.Close()
		return fmt.Errorf("%w: %s", ErrUnsupportedAudio, filepath.Ext(path))
	}

	if p.player != nil {
		p.player.Close()
		p.player = nil
	}

	if p.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, cerr := oto.NewContext(op)
		if cerr != nil {
			f.Close()
			return fmt.Errorf("create audio context: %w", cerr)
		}
		<-ready
		p.otoCtx = ctx
	}

	p.src = &countingSource{r: src}
	p.player = p.otoCtx.NewPlayer(p.src)
	p.player.SetVolume(p.volume)
	p.byteRate = int64(sampleRate) * int64(channels) * 2
	p.frame = int64(channels) * 2
	p.duration = time.Duration(totalBytes) * time.Second / time.Duration(p.byteRate)
	p.status = clock.StatusPaused

	p.log.Info("audio loaded",
		"path", path,
		"sample_rate", sampleRate,
		"channels", channels,
		"duration", p.duration,
	)
	return nil
}

// Position reports the playback position derived from bytes handed to
// the device minus what still sits in oto's buffer.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil || p.byteRate == 0 {
		return 0
	}
	consumed := p.src.pos() - int64(p.player.UnplayedBufferSize())
	if consumed < 0 {
		consumed = 0
	}
	return time.Duration(consumed) * time.Second / time.Duration(p.byteRate)
}

// Status reports the playback state. A drained player reads as stopped.
func (p *Player) Status() clock.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil {
		return clock.StatusStopped
	}
	if p.status == clock.StatusPlaying && !p.player.IsPlaying() {
		p.status = clock.StatusStopped
	}
	return p.status
}

// Play starts or resumes playback.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil {
		return
	}
	p.player.Play()
	p.status = clock.StatusPlaying
}

// Pause pauses playback, keeping the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil {
		return
	}
	p.player.Pause()
	p.status = clock.StatusPaused
}

// Seek repositions playback, aligned to a sample frame.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil {
		return fmt.Errorf("no audio loaded")
	}
	off := int64(pos) * p.byteRate / int64(time.Second)
	off -= off % p.frame
	if _, err := p.player.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek audio: %w", err)
	}
	if p.status == clock.StatusStopped {
		p.status = clock.StatusPaused
	}
	return nil
}

// Duration returns the loaded track's length.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// SetVolume sets playback volume in [0, 1].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume = v
	if p.player != nil {
		p.player.SetVolume(v)
	}
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close releases the oto player.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player != nil {
		p.player.Close()
		p.player = nil
	}
	p.status = clock.StatusStopped
}

// countingSource tracks the byte offset oto has read, so Position can
// be computed without asking the decoder.
type countingSource struct {
	r io.ReadSeeker
	n atomic.Int64
}

func (c *countingSource) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingSource) Seek(offset int64, whence int) (int64, error) {
	pos, err := c.r.Seek(offset, whence)
	if err == nil {
		c.n.Store(pos)
	}
	return pos, err
}

func (c *countingSource) pos() int64 {
	return c.n.Load()
}
