package playback

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrAssetNotFound is returned when no candidate file is present and valid.
var ErrAssetNotFound = errors.New("playback: asset not found")

// DefaultPrefixes lists the asset directories in lookup order: removable
// media first, then the internal partitions.
var DefaultPrefixes = []string{
	"/media/sdcard",
	"/var/lib/kavach/spiffs",
	"/var/lib/kavach/storage",
}

// Language selects the confirmation voice.
type Language string

const (
	LangEN Language = "en"
	LangCN Language = "cn"
)

// ParseLanguage accepts "en" or "cn"; anything else is English.
func ParseLanguage(s string) Language {
	if s == string(LangCN) {
		return LangCN
	}
	return LangEN
}

// Confirm is the kind of spoken confirmation after a command.
type Confirm int

const (
	ConfirmOK Confirm = iota
	ConfirmAlerted
	ConfirmCalling
	ConfirmHelp
)

// Suffix returns the file name suffix for c. Unknown values map to "ok".
func (c Confirm) Suffix() string {
	switch c {
	case ConfirmAlerted:
		return "alerted"
	case ConfirmCalling:
		return "calling"
	case ConfirmHelp:
		return "help"
	default:
		return "ok"
	}
}

func (c Confirm) String() string { return c.Suffix() }

// ParseConfirm accepts a confirmation suffix such as "alerted".
func ParseConfirm(s string) (Confirm, error) {
	for _, c := range []Confirm{ConfirmOK, ConfirmAlerted, ConfirmCalling, ConfirmHelp} {
		if c.Suffix() == s {
			return c, nil
		}
	}
	return ConfirmOK, fmt.Errorf("unknown confirmation %q", s)
}

// Asset file names.
const (
	GasAlarmName = "gas_alarm.wav"
)

// WakeBeepNames returns the wake beep candidates in order.
func WakeBeepNames() []string {
	return []string{"beep.wav", "wake.wav"}
}

// ConfirmNames returns the confirmation candidates for c in lang, followed
// by the "ok" fallback.
func ConfirmNames(lang Language, c Confirm) []string {
	names := []string{fmt.Sprintf("echo_%s_%s.wav", lang, c.Suffix())}
	if c.Suffix() != ConfirmOK.Suffix() {
		names = append(names, fmt.Sprintf("echo_%s_%s.wav", lang, ConfirmOK.Suffix()))
	}
	return names
}

// LoadFile reads and validates a WAV asset.
func LoadFile(path string) (*WAV, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := CheckFileSize(info.Size()); err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w, err := ParseWAV(buf)
	if err != nil {
		return nil, err
	}
	if err := w.CheckFormat(); err != nil {
		return nil, err
	}
	return w, nil
}

// Resolver finds assets across the prefix directories. A lookup tries
// each name in every prefix before moving on to the next name; the first
// file that exists and passes validation wins. Hits are cached until
// Watch sees a change in one of the directories.
type Resolver struct {
	prefixes []string
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver over prefixes (DefaultPrefixes if empty).
func NewResolver(prefixes []string, logger *slog.Logger) *Resolver {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		prefixes: append([]string(nil), prefixes...),
		logger:   logger,
		cache:    make(map[string]string),
	}
}

// Prefixes returns the lookup directories.
func (r *Resolver) Prefixes() []string {
	return append([]string(nil), r.prefixes...)
}

// Resolve returns the path and contents of the first valid candidate.
func (r *Resolver) Resolve(names ...string) (string, *WAV, error) {
	if len(names) == 0 {
		return "", nil, ErrAssetNotFound
	}
	key := names[0]
	for _, n := range names[1:] {
		key += "|" + n
	}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		if w, err := LoadFile(cached); err == nil {
			return cached, w, nil
		}
		r.Invalidate()
	}

	for _, name := range names {
		for _, prefix := range r.prefixes {
			path := filepath.Join(prefix, name)
			w, err := LoadFile(path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					r.logger.Warn("skipping asset", "path", path, "error", err)
				}
				continue
			}
			r.mu.Lock()
			r.cache[key] = path
			r.mu.Unlock()
			return path, w, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %v", ErrAssetNotFound, names)
}

// Invalidate drops every cached lookup.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()
}

// Watch invalidates the cache whenever a prefix directory changes. It
// blocks until ctx is cancelled. Directories that do not exist are skipped;
// if none can be watched Watch returns immediately with nil.
func (r *Resolver) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create asset watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range r.prefixes {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			r.logger.Warn("cannot watch asset directory", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		r.logger.Debug("no asset directories to watch")
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.logger.Debug("asset directory changed", "path", ev.Name, "op", ev.Op.String())
			r.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("asset watcher error", "error", err)
		}
	}
}
