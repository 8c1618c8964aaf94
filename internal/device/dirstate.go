package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DirState reads the device state snapshot written for the v2 transport:
// one JSON file per top-level key, named <key>.json.
type DirState struct {
	dir    string
	logger zerolog.Logger
}

// NewDirState returns a snapshot reader for dir.
func NewDirState(dir string, logger zerolog.Logger) *DirState {
	return &DirState{dir: dir, logger: logger.With().Str("component", "dirstate").Logger()}
}

// BotState assembles the state document from the snapshot files. Files that
// fail to parse are skipped with a warning; they are usually being
// rewritten.
func (d *DirState) BotState(ctx context.Context) (map[string]any, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("read state dir: %w", err)
	}

	state := make(map[string]any, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(d.dir, entry.Name()))
		if err != nil {
			d.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping state file")
			continue
		}
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			d.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping state file")
			continue
		}
		state[key] = value
	}
	return state, nil
}

// Watch calls fn with a fresh state document whenever snapshot files change,
// debouncing bursts of writes. It blocks until ctx is done.
func (d *DirState) Watch(ctx context.Context, fn func(map[string]any)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(d.dir); err != nil {
		return err
	}
	d.logger.Info().Str("dir", d.dir).Msg("watching device state")

	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !d.relevant(event) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			state, err := d.BotState(ctx)
			if err != nil {
				d.logger.Error().Err(err).Msg("failed to reload device state")
				continue
			}
			fn(state)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func (d *DirState) relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".json") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
