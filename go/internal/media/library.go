package media

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/betsync/go/internal/round"
)

var (
	ErrNoMedia  = errors.New("no media available")
	ErrNotFound = errors.New("media not found")
)

var videoExtensions = []string{".mp4", ".mov", ".avi", ".webm"}

// Library is a directory of video files. It implements round.MediaSelector.
type Library struct {
	dir     string
	baseURL string
	pick    func(n int) int
}

// LibraryOption configures a Library
type LibraryOption func(*Library)

// WithPicker replaces the uniform random choice
func WithPicker(pick func(n int) int) LibraryOption {
	return func(l *Library) { l.pick = pick }
}

// NewLibrary creates a library over dir. Video URLs are baseURL followed by
// the escaped file name.
func NewLibrary(dir, baseURL string, opts ...LibraryOption) *Library {
	l := &Library{
		dir:     dir,
		baseURL: baseURL,
		pick:    rand.IntN,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List returns the playable file names in directory order. A missing
// directory is an empty library.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("video_dir", l.dir).Msg("video directory does not exist")
			return nil, nil
		}
		return nil, fmt.Errorf("read video directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isVideo(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Select picks a random video for the next round
func (l *Library) Select() (round.Media, error) {
	names, err := l.List()
	if err != nil {
		return round.Media{}, err
	}
	if len(names) == 0 {
		return round.Media{}, ErrNoMedia
	}

	name := names[l.pick(len(names))]
	return round.Media{Name: name, URL: l.URL(name)}, nil
}

// URL returns the address viewers load the named video from
func (l *Library) URL(name string) string {
	return l.baseURL + url.PathEscape(name)
}

// Open opens a video by its bare file name
func (l *Library) Open(name string) (*os.File, fs.FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !isVideo(name) {
		return nil, nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open video: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat video: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

func isVideo(name string) bool {
	return slices.Contains(videoExtensions, strings.ToLower(filepath.Ext(name)))
}
