// Package noteschema loads and freezes the NoteSchema configuration
// (spec.md "NoteSchema (config, not persisted)"): a per-tag list of
// expected notes, each tagged with the role it gates. The schema is
// config, never database state, and is read-only after process start
// (spec.md §9 design note: "global state -> inject, load once,
// freeze").
package noteschema

import (
	"os"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/ravelhq/ravel/internal/diag"
	"github.com/ravelhq/ravel/internal/types"
)

// Entry is one schema row for a tag: a note key expected at a role,
// optionally required (making it a gate for that role).
type Entry struct {
	Key      string     `toml:"key"`
	Role     types.Role `toml:"role"`
	Required bool       `toml:"required"`
}

type fileFormat struct {
	Tags                map[string][]Entry `toml:"tags"`
	PreserveOnCleanup   []string           `toml:"preserve_on_cleanup_tags"`
}

// defaultPreserveOnCleanupTags matches the teacher's conservative
// default set of tags complete_tree's optional cleanup step never
// deletes regardless of role.
var defaultPreserveOnCleanupTags = []string{"bugfix", "hotfix", "critical"}

// Registry is the immutable, loaded-once NoteSchema. All methods are
// safe for concurrent read access; nothing mutates a Registry after
// Load returns it.
type Registry struct {
	byTag             map[string][]Entry
	preserveOnCleanup map[string]bool
}

// Load reads path (TOML) once and returns a frozen Registry. An
// absent path is not an error: it yields an empty schema (no tag
// carries any expected notes, so no gate is ever closed) plus the
// default preserve-on-cleanup tag set.
func Load(path string) (*Registry, error) {
	if path == "" {
		return &Registry{byTag: map[string][]Entry{}, preserveOnCleanup: toSet(defaultPreserveOnCleanupTags)}, nil
	}
	var ff fileFormat
	if _, err := toml.DecodeFile(path, &ff); err != nil {
		if os.IsNotExist(err) {
			return &Registry{byTag: map[string][]Entry{}, preserveOnCleanup: toSet(defaultPreserveOnCleanupTags)}, nil
		}
		return nil, types.NewError(types.ErrValidation, "loading note schema %s: %v", path, err)
	}
	preserve := ff.PreserveOnCleanup
	if len(preserve) == 0 {
		preserve = defaultPreserveOnCleanupTags
	}
	r := &Registry{byTag: ff.Tags, preserveOnCleanup: toSet(preserve)}
	if r.byTag == nil {
		r.byTag = map[string][]Entry{}
	}
	return r, nil
}

func toSet(tags []string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

// EntriesForTags returns the schema entries of every tag in tags,
// concatenated in the order the tags are given (each tag's entries in
// schema file order), skipping tags with no schema entries. A key that
// appears under two of the tags appears twice.
func (r *Registry) EntriesForTags(tags []string) []Entry {
	var out []Entry
	for _, tag := range tags {
		out = append(out, r.byTag[tag]...)
	}
	return out
}

// PreservesOnCleanup reports whether tag is in the configured
// preserve-on-cleanup set, consulted by complete_tree's optional
// cleanupChildren step.
func (r *Registry) PreservesOnCleanup(tag string) bool {
	return r.preserveOnCleanup[tag]
}

// Watcher logs a CONFIG_DRIFT warning if the loaded schema file
// changes on disk after startup. It never reloads the Registry: the
// schema is frozen for the life of the process (spec.md §9).
type Watcher struct {
	w    *fsnotify.Watcher
	once sync.Once
}

// WatchForDrift starts watching path (if non-empty) in the background
// and returns a Watcher the caller should Close at shutdown. Watch
// failures are logged, not fatal: drift detection is a diagnostic
// convenience, not a correctness requirement.
func WatchForDrift(path string) *Watcher {
	if path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		diag.Logf("noteschema: could not start drift watcher: %v", err)
		return nil
	}
	if err := w.Add(path); err != nil {
		diag.Logf("noteschema: could not watch %s: %v", path, err)
		w.Close()
		return nil
	}
	watcher := &Watcher{w: w}
	go watcher.run(path)
	return watcher
}

func (w *Watcher) run(path string) {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				diag.Logf("CONFIG_DRIFT: note schema file %s changed after load; restart to apply", path)
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			diag.Logf("noteschema: watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() {
	if w == nil {
		return
	}
	w.once.Do(func() { w.w.Close() })
}
