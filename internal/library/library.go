// ABOUTME: Show library scanning a directory of beat files
// ABOUTME: Pairs .json cue files with their audio tracks
package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Open-Lights/OpenLightsCore/pkg/beatfile"
)

// Entry is one show found on disk: a beat file and, when present, an
// audio track sharing its base name.
type Entry struct {
	Name      string
	BeatPath  string
	AudioPath string
}

// Library lists and loads shows from a root directory. The layout
// mirrors the authoring tool's playlist folders: any .json under the
// root is a beat file, and "show.wav" or "show.mp3" beside
// "show.json" is its track.
type Library struct {
	root string
}

// New creates a library rooted at dir.
func New(root string) *Library {
	return &Library{root: root}
}

// Root returns the library root directory.
func (l *Library) Root() string {
	return l.root
}

// Scan walks the root and returns entries sorted by name.
func (l *Library) Scan() ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		base := strings.TrimSuffix(path, filepath.Ext(path))
		entry := Entry{
			Name:     showName(l.root, base),
			BeatPath: path,
		}
		for _, ext := range []string{".wav", ".mp3"} {
			if _, statErr := os.Stat(base + ext); statErr == nil {
				entry.AudioPath = base + ext
				break
			}
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan show library: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Find returns the entry with the given name.
func (l *Library) Find(name string) (Entry, error) {
	entries, err := l.Scan()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("show %q not in library", name)
}

// Load reads and parses an entry's beat file. The returned audio path
// prefers the beat file's own audio reference (relative to the root)
// over the side-by-side track.
func (l *Library) Load(entry Entry, devices beatfile.DeviceResolver) (*beatfile.Show, string, error) {
	data, err := os.ReadFile(entry.BeatPath)
	if err != nil {
		return nil, "", fmt.Errorf("read beat file: %w", err)
	}

	show, err := beatfile.Parse(data, devices)
	if err != nil {
		return nil, "", err
	}

	audio := entry.AudioPath
	if show.Audio != "" {
		audio = filepath.Join(l.root, show.Audio)
	}
	return show, audio, nil
}

// showName derives a stable show name from the path relative to the
// library root.
func showName(root, base string) string {
	rel, err := filepath.Rel(root, base)
	if err != nil {
		return filepath.Base(base)
	}
	return filepath.ToSlash(rel)
}
