package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// AplaySink streams PCM16 into an aplay process. The process is started on
// the first Write and drained by Flush, so every clip plays to the end
// before Flush returns.
type AplaySink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewAplaySink checks that aplay is installed and returns a sink for it.
func NewAplaySink(cfg Config, logger *slog.Logger) (*AplaySink, error) {
	if _, err := exec.LookPath("aplay"); err != nil {
		return nil, fmt.Errorf("aplay not found: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AplaySink{cfg: cfg, logger: logger}, nil
}

// Start marks the sink ready; the device opens on the first Write.
func (s *AplaySink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Stop kills any playback in progress.
func (s *AplaySink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.killLocked()
	return nil
}

func (s *AplaySink) args() []string {
	return []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
		"-D", s.cfg.Device,
		"--buffer-time=" + strconv.FormatInt(s.cfg.BufferDuration.Microseconds(), 10),
		"-",
	}
}

// startLocked launches aplay reading from stdin (must hold mu).
func (s *AplaySink) startLocked() error {
	cmd := exec.Command("aplay", s.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start aplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// Write sends an audio chunk to aplay, starting it if needed.
func (s *AplaySink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}
	if s.cmd == nil {
		if err := s.startLocked(); err != nil {
			return err
		}
	}

	if _, err := s.stdin.Write(chunk.Bytes()); err != nil {
		// aplay died, restart on the next write
		s.killLocked()
		return fmt.Errorf("write to aplay: %w", err)
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush closes aplay's input and waits for it to finish playing.
func (s *AplaySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}

	s.stdin.Close()
	s.stdin = nil

	done := make(chan error, 1)
	cmd := s.cmd
	go func() {
		done <- cmd.Wait()
	}()

	timeout := s.cfg.FlushTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		err = ctx.Err()
	case <-time.After(timeout):
		cmd.Process.Kill()
		<-done
		err = fmt.Errorf("aplay did not finish within %v", timeout)
	}
	s.cmd = nil
	return err
}

// Clear discards queued audio by killing aplay.
func (s *AplaySink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.killLocked()
	return nil
}

// killLocked stops the aplay process (must hold mu).
func (s *AplaySink) killLocked() {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
}

// SetVolume sets the mixer level with amixer.
func (s *AplaySink) SetVolume(level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return s.amixer(strconv.Itoa(level) + "%")
}

// SetMute mutes or unmutes the mixer control.
func (s *AplaySink) SetMute(mute bool) error {
	if mute {
		return s.amixer("mute")
	}
	return s.amixer("unmute")
}

func (s *AplaySink) amixer(value string) error {
	if s.cfg.MixerControl == "" {
		return nil
	}
	out, err := exec.Command("amixer", "-q", "sset", s.cfg.MixerControl, value).CombinedOutput()
	if err != nil {
		return fmt.Errorf("amixer %s %s: %w: %s", s.cfg.MixerControl, value, err, out)
	}
	return nil
}

// Config returns the audio configuration.
func (s *AplaySink) Config() Config {
	return s.cfg
}

// Name returns "aplay".
func (s *AplaySink) Name() string {
	return "aplay"
}

// Close stops playback; the sink cannot be restarted.
func (s *AplaySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns sink statistics.
func (s *AplaySink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Running:        running,
		Backend:        "aplay",
	}
}

var (
	_ SinkWithStats    = (*AplaySink)(nil)
	_ VolumeController = (*AplaySink)(nil)
)
