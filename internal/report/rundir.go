package report

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// dirLayout names run directories after their start time.
const dirLayout = "06-01-02_15-04-05"

// maxDirAttempts bounds the one-second bumps on name collisions.
const maxDirAttempts = 3600

// Artifact file names inside a run directory.
const (
	ResultsFile = "res.json"
	StatsFile   = "res.csv"
	LogFile     = "log.txt"
	ConfigFile  = "config.yaml"
)

// RunDir is the directory receiving the artifacts of one run.
type RunDir struct {
	Path string
	Src  string // configuration copy
	Data string // archived input files
}

// CreateRunDir creates base/<yy-mm-dd_HH-MM-SS> for now, bumping the time by
// one second while the name is taken.
func CreateRunDir(base string, now time.Time) (*RunDir, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	for range maxDirAttempts {
		path := filepath.Join(base, now.Format(dirLayout))
		err := os.Mkdir(path, 0o755)
		if errors.Is(err, fs.ErrExist) {
			now = now.Add(time.Second)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
		d := &RunDir{
			Path: path,
			Src:  filepath.Join(path, "src"),
			Data: filepath.Join(path, "data"),
		}
		for _, sub := range []string{d.Src, d.Data} {
			if err := os.Mkdir(sub, 0o755); err != nil {
				return nil, fmt.Errorf("create run dir: %w", err)
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("create run dir: no free name under %s", base)
}

// File returns the path of an artifact in the run directory.
func (d *RunDir) File(name string) string {
	return filepath.Join(d.Path, name)
}

// Archive copies the regular files matching patterns into the data
// directory, keeping paths relative to the working directory. It returns
// the number of files copied.
func (d *RunDir) Archive(patterns []string) (int, error) {
	copied := 0
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return copied, fmt.Errorf("archive pattern %q: %w", pattern, err)
		}
		for _, src := range matches {
			info, err := os.Stat(src)
			if err != nil || !info.Mode().IsRegular() || seen[src] {
				continue
			}
			seen[src] = true
			if err := copyFile(src, filepath.Join(d.Data, archiveName(src))); err != nil {
				return copied, err
			}
			copied++
		}
	}
	return copied, nil
}

// archiveName maps a source path to its place under the data directory.
func archiveName(src string) string {
	clean := filepath.Clean(src)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return filepath.Base(clean)
	}
	return clean
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
