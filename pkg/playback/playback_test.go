package playback

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/kavach/pkg/audioio"
)

// makeWAV builds a canonical 44-byte-header PCM file.
func makeWAV(sampleRate uint32, bits uint16, samples []int16) []byte {
	data := audioio.SamplesToBytes(samples)
	buf := make([]byte, 44+len(data))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(data)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*uint32(bits)/8)
	binary.LittleEndian.PutUint16(buf[32:34], bits/8)
	binary.LittleEndian.PutUint16(buf[34:36], bits)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(data)))
	copy(buf[44:], data)
	return buf
}

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i * 10)
	}
	return s
}

func writeAsset(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParseWAV_Canonical(t *testing.T) {
	w, err := ParseWAV(makeWAV(16000, 16, []int16{1, 2, 3, 4, 5}))
	require.NoError(t, err)

	assert.Equal(t, uint32(16000), w.SampleRate)
	assert.Equal(t, uint16(16), w.BitsPerSample)
	// 10 bytes of PCM round down to 8.
	assert.Len(t, w.PCM, 8)
	assert.NoError(t, w.CheckFormat())
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	wav := makeWAV(16000, 16, []int16{7, 8})
	list := append([]byte("LIST"), 4, 0, 0, 0, 'i', 'n', 'f', 'o')
	buf := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	w, err := ParseWAV(buf)
	require.NoError(t, err)
	assert.Equal(t, []int16{7, 8}, audioio.BytesToSamples(w.PCM))
}

func TestParseWAV_DefaultsWithoutFmt(t *testing.T) {
	buf := []byte("RIFF\x00\x00\x00\x00WAVEdata\x04\x00\x00\x00\x01\x00\x02\x00")
	w, err := ParseWAV(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), w.SampleRate)
	assert.Equal(t, uint16(16), w.BitsPerSample)
}

func TestParseWAV_ZeroBitsMeansSixteen(t *testing.T) {
	w, err := ParseWAV(makeWAV(16000, 0, []int16{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, uint16(16), w.BitsPerSample)
}

func TestParseWAV_Rejects(t *testing.T) {
	_, err := ParseWAV([]byte("RIFF\x00\x00\x00\x00AVI "))
	assert.ErrorIs(t, err, ErrNotWAV)

	_, err = ParseWAV([]byte("short"))
	assert.ErrorIs(t, err, ErrNotWAV)

	// data chunk claims more bytes than the buffer holds
	wav := makeWAV(16000, 16, []int16{1, 2})
	binary.LittleEndian.PutUint32(wav[40:44], 1000)
	_, err = ParseWAV(wav)
	assert.ErrorIs(t, err, ErrNoData)

	// a chunk length near the int32 limit must not wrap the bounds check
	buf := make([]byte, 64)
	copy(buf, "RIFF\x38\x00\x00\x00WAVELIST")
	binary.LittleEndian.PutUint32(buf[16:20], 0x7FFFFFF0)
	require.NotPanics(t, func() { _, err = ParseWAV(buf) })
	assert.ErrorIs(t, err, ErrNoData)

	binary.LittleEndian.PutUint32(buf[16:20], 0xFFFFFFFF)
	_, err = ParseWAV(buf)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCheckFormat(t *testing.T) {
	w, err := ParseWAV(makeWAV(44100, 16, []int16{1, 2}))
	require.NoError(t, err)

	err = w.CheckFormat()
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, uint32(44100), fe.SampleRate)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCheckFileSize(t *testing.T) {
	assert.ErrorIs(t, CheckFileSize(44), ErrFileSize)
	assert.NoError(t, CheckFileSize(45))
	assert.NoError(t, CheckFileSize(MaxFileSize))
	assert.ErrorIs(t, CheckFileSize(MaxFileSize+1), ErrFileSize)
}

func TestConfirmNames(t *testing.T) {
	assert.Equal(t, []string{"echo_en_calling.wav", "echo_en_ok.wav"}, ConfirmNames(LangEN, ConfirmCalling))
	assert.Equal(t, []string{"echo_cn_ok.wav"}, ConfirmNames(LangCN, ConfirmOK))
	assert.Equal(t, "ok", Confirm(42).Suffix())
}

func TestResolver_Order(t *testing.T) {
	root := t.TempDir()
	sd := filepath.Join(root, "sdcard")
	internal := filepath.Join(root, "spiffs")

	wav := makeWAV(16000, 16, ramp(100))
	writeAsset(t, internal, "beep.wav", wav)
	writeAsset(t, sd, "wake.wav", wav)

	r := NewResolver([]string{sd, internal}, nil)

	// every prefix is tried for beep.wav before wake.wav
	path, _, err := r.Resolve(WakeBeepNames()...)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(internal, "beep.wav"), path)
}

func TestResolver_SkipsInvalidFiles(t *testing.T) {
	root := t.TempDir()
	sd := filepath.Join(root, "sdcard")
	internal := filepath.Join(root, "spiffs")

	writeAsset(t, sd, GasAlarmName, makeWAV(44100, 16, ramp(100)))
	writeAsset(t, internal, GasAlarmName, makeWAV(16000, 16, ramp(100)))

	r := NewResolver([]string{sd, internal}, nil)
	path, _, err := r.Resolve(GasAlarmName)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(internal, GasAlarmName), path)
}

func TestResolver_CacheFollowsDeletion(t *testing.T) {
	root := t.TempDir()
	sd := filepath.Join(root, "sdcard")
	internal := filepath.Join(root, "spiffs")
	wav := makeWAV(16000, 16, ramp(100))

	first := writeAsset(t, sd, "echo_en_ok.wav", wav)
	writeAsset(t, internal, "echo_en_ok.wav", wav)

	r := NewResolver([]string{sd, internal}, nil)
	path, _, err := r.Resolve("echo_en_ok.wav")
	require.NoError(t, err)
	assert.Equal(t, first, path)

	require.NoError(t, os.Remove(first))
	path, _, err = r.Resolve("echo_en_ok.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(internal, "echo_en_ok.wav"), path)
}

func TestResolver_WatchInvalidates(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver([]string{dir}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	r.mu.Lock()
	r.cache["x"] = "/nowhere"
	r.mu.Unlock()

	assert.Eventually(t, func() bool {
		writeAsset(t, dir, "new.wav", []byte("x"))
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.cache) == 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver([]string{t.TempDir()}, nil)
	_, _, err := r.Resolve("beep.wav")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

// newTestPlayer returns a player over a mock sink with mixer delays removed.
func newTestPlayer(t *testing.T, dir string) (*Player, *audioio.MockSink) {
	t.Helper()
	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil)
	cfg := DefaultConfig()
	cfg.Prefixes = []string{dir}
	p, err := NewPlayer(cfg, sink, nil, nil)
	require.NoError(t, err)
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return p, sink
}

func runPlayer(t *testing.T, p *Player) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-p.Done()
	})
}

func TestPlayer_ConfirmationPlaysUpsampled(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "echo_en_ok.wav", makeWAV(16000, 16, []int16{0, 300, 600, 900}))

	p, sink := newTestPlayer(t, dir)
	runPlayer(t, p)

	// alerted is missing, so the ok clip plays
	require.True(t, p.PlayConfirmation(ConfirmAlerted))

	require.Eventually(t, func() bool {
		return len(sink.Chunks()) == 1 && sink.Volume() == 70
	}, time.Second, 5*time.Millisecond)

	chunk := sink.Chunks()[0]
	assert.Equal(t, 48000, chunk.SampleRate)
	assert.Equal(t, []int16{0, 100, 200, 300, 400, 500, 600, 700, 800, 900, 900, 900}, chunk.Samples)
	assert.Equal(t, []string{"volume 100", "mute", "unmute", "volume 70"}, sink.MixerLog())
	assert.False(t, p.IsPlaying())
}

func TestPlayer_RejectsWrongFormat(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "beep.wav", makeWAV(44100, 16, ramp(100)))
	writeAsset(t, dir, "wake.wav", makeWAV(16000, 8, ramp(100)))

	p, sink := newTestPlayer(t, dir)
	runPlayer(t, p)

	require.True(t, p.PlayWakeBeep())
	// a second request proves the first was consumed
	writeAsset(t, dir, "echo_en_ok.wav", makeWAV(16000, 16, ramp(10)))
	require.True(t, p.PlayConfirmation(ConfirmOK))

	require.Eventually(t, func() bool {
		return sink.Stats().ChunksWritten == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, sink.Samples(), 30)
}

func TestPlayer_QueueFullDoesNotBlock(t *testing.T) {
	p, _ := newTestPlayer(t, t.TempDir())

	for i := 0; i < 4; i++ {
		require.True(t, p.PlayGasAlarm())
	}

	start := time.Now()
	assert.False(t, p.PlayWakeBeep())
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPlayer_VoiceConfirmDisabled(t *testing.T) {
	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil)
	cfg := DefaultConfig()
	cfg.VoiceConfirm = false
	p, err := NewPlayer(cfg, sink, nil, nil)
	require.NoError(t, err)

	assert.False(t, p.PlayWakeBeep())
	assert.False(t, p.PlayConfirmation(ConfirmOK))
	assert.True(t, p.PlayGasAlarm())
}

func TestPlayer_StopGasAlarm(t *testing.T) {
	dir := t.TempDir()
	// 16000 samples upsample to 48000, i.e. 24 chunks of 2048 samples.
	writeAsset(t, dir, GasAlarmName, makeWAV(16000, 16, ramp(16000)))

	p, sink := newTestPlayer(t, dir)
	sink.WriteDelay = 10 * time.Millisecond

	// a stop issued before the alarm starts is reset by the alarm itself
	p.StopGasAlarm()
	runPlayer(t, p)
	require.True(t, p.PlayGasAlarm())

	require.Eventually(t, p.IsPlaying, time.Second, time.Millisecond)
	p.StopGasAlarm()
	require.Eventually(t, func() bool { return !p.IsPlaying() }, time.Second, time.Millisecond)

	assert.Less(t, sink.Stats().SamplesWritten, int64(48000))
}

func TestPlayer_AlarmPlaysInChunks(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, GasAlarmName, makeWAV(16000, 16, ramp(1000)))

	p, sink := newTestPlayer(t, dir)
	runPlayer(t, p)
	require.True(t, p.PlayGasAlarm())

	require.Eventually(t, func() bool {
		return sink.Stats().SamplesWritten == 3000
	}, time.Second, 5*time.Millisecond)

	chunks := sink.Chunks()
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Samples, 2048)
	assert.Len(t, chunks[1].Samples, 952)
}

func TestPlayer_SinkStartFailure(t *testing.T) {
	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil)
	sink.Close()
	p, err := NewPlayer(DefaultConfig(), sink, nil, nil)
	require.NoError(t, err)

	err = p.Run(context.Background())
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Volume = 101
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.AlarmChunkBytes = 4095
	assert.Error(t, cfg.Validate())
}
