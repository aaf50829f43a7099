package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// PositionSample is one cycle's observed position, kept in a short
// rolling history by the session's cycle driver for movement analysis.
type PositionSample struct {
	X, Y, MapID int
}

// PromptTemplate holds the current template text plus the placeholders
// render() substitutes. Hot-reloaded on mtime change per spec.md §4.3;
// fsnotify is best-effort — the mtime check on every Render call is the
// source of truth, matching the "hot-reloaded on mtime change" wording
// literally rather than trusting inotify delivery alone.
type PromptTemplate struct {
	mu       sync.Mutex
	path     string
	text     string
	modTime  int64
	watcher  *fsnotify.Watcher
}

// LoadPromptTemplate reads path and starts a best-effort fsnotify watch
// on it. Callers must call Close when the prompt template is no longer
// needed (service shutdown).
func LoadPromptTemplate(path string) (*PromptTemplate, error) {
	pt := &PromptTemplate{path: path}
	if err := pt.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("prompt template: fsnotify unavailable, falling back to mtime polling only")
		return pt, nil
	}
	if err := w.Add(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("prompt template: failed to watch file")
		w.Close()
		return pt, nil
	}
	pt.watcher = w
	go pt.watchLoop()
	return pt, nil
}

func (pt *PromptTemplate) watchLoop() {
	for {
		select {
		case ev, ok := <-pt.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := pt.reload(); err != nil {
					log.Warn().Err(err).Msg("prompt template: reload after fsnotify event failed")
				}
			}
		case err, ok := <-pt.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("prompt template: watcher error")
		}
	}
}

func (pt *PromptTemplate) reload() error {
	info, err := os.Stat(pt.path)
	if err != nil {
		return fmt.Errorf("llm: stat prompt template %s: %w", pt.path, err)
	}
	mt := info.ModTime().UnixNano()

	pt.mu.Lock()
	unchanged := mt == pt.modTime && pt.text != ""
	pt.mu.Unlock()
	if unchanged {
		return nil
	}

	raw, err := os.ReadFile(pt.path)
	if err != nil {
		return fmt.Errorf("llm: read prompt template %s: %w", pt.path, err)
	}

	pt.mu.Lock()
	pt.text = string(raw)
	pt.modTime = mt
	pt.mu.Unlock()
	return nil
}

// Close stops the fsnotify watch, if one was established.
func (pt *PromptTemplate) Close() error {
	if pt.watcher == nil {
		return nil
	}
	return pt.watcher.Close()
}

// RenderContext carries every value a template placeholder may draw on.
type RenderContext struct {
	RecentActions    []string
	NotepadContent   string
	CurrentMap       int
	PlayerX          int
	PlayerY          int
	PlayerDirection  string
	History          []PositionSample
}

const notepadMaxChars = 4000

// Render substitutes the template's placeholders, re-stat'ing the file
// first so a manual edit is picked up even without fsnotify.
func (pt *PromptTemplate) Render(rc RenderContext) string {
	if err := pt.reload(); err != nil {
		log.Warn().Err(err).Msg("prompt template: mtime recheck failed, using cached text")
	}

	pt.mu.Lock()
	text := pt.text
	pt.mu.Unlock()

	notepad := rc.NotepadContent
	if len(notepad) > notepadMaxChars {
		notepad = notepad[:notepadMaxChars]
	}

	replacer := strings.NewReplacer(
		"{spatial_context}", spatialContext(rc),
		"{recent_actions}", strings.Join(lastK(rc.RecentActions, 8), ", "),
		"{direction_guidance}", directionGuidance(rc.History, rc.PlayerDirection),
		"{notepad_content}", notepad,
		"{current_map}", fmt.Sprintf("%d", rc.CurrentMap),
		"{player_x}", fmt.Sprintf("%d", rc.PlayerX),
		"{player_y}", fmt.Sprintf("%d", rc.PlayerY),
		"{player_direction}", rc.PlayerDirection,
	)
	return replacer.Replace(text)
}

func lastK(s []string, k int) []string {
	if len(s) <= k {
		return s
	}
	return s[len(s)-k:]
}

func spatialContext(rc RenderContext) string {
	return fmt.Sprintf("You are at (%d, %d) on map %d, facing %s.", rc.PlayerX, rc.PlayerY, rc.CurrentMap, rc.PlayerDirection)
}

// directionGuidance implements spec.md §4.3's movement analysis: stuck
// if the last >=3 positions are identical, oscillation if the last 4
// alternate between two positions.
func directionGuidance(history []PositionSample, direction string) string {
	switch {
	case isStuck(history):
		return fmt.Sprintf("You appear stuck — the last several moves did not change your position. Try a different direction or action than facing %s.", direction)
	case isOscillating(history):
		return "You appear to be oscillating between two positions. Try committing to a single new direction."
	default:
		return fmt.Sprintf("Currently facing %s.", direction)
	}
}

func isStuck(history []PositionSample) bool {
	if len(history) < 3 {
		return false
	}
	last := history[len(history)-1]
	for i := len(history) - 2; i >= len(history)-3; i-- {
		if history[i] != last {
			return false
		}
	}
	return true
}

func isOscillating(history []PositionSample) bool {
	if len(history) < 4 {
		return false
	}
	n := len(history)
	a, b, c, d := history[n-4], history[n-3], history[n-2], history[n-1]
	return a == c && b == d && a != b
}
