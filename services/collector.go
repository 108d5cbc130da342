package services

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"stars-host/starsfile"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// Output file patterns, relative to the workspace.
const (
	HostPattern  = "*.hst"
	MapPattern   = "*.xy"
	StatePattern = "*.m[0-9]*"
)

// AnyCount disables the cardinality check in Collect.
const AnyCount = -1

var stateFileRe = regexp.MustCompile(`\.m[0-9]+$`)

// CollectedFile is one engine output file, read and decoded.
type CollectedFile struct {
	Name string
	Data []byte
	File *starsfile.File
}

// OutputCollector finds and decodes what the engine left in a workspace.
type OutputCollector struct {
	codec starsfile.Codec
	log   *zap.Logger
}

func NewOutputCollector(codec starsfile.Codec, log *zap.Logger) *OutputCollector {
	return &OutputCollector{codec: codec, log: log}
}

func (c *OutputCollector) match(workspace, pattern string) ([]string, error) {
	names, err := doublestar.Glob(os.DirFS(workspace), pattern)
	if err != nil {
		return nil, fmt.Errorf("bad output pattern %q: %w", pattern, err)
	}
	if pattern == StatePattern {
		kept := names[:0]
		for _, n := range names {
			if stateFileRe.MatchString(n) {
				kept = append(kept, n)
			}
		}
		names = kept
	}
	sort.Strings(names)
	return names, nil
}

// Collect returns the files matching pattern, decoded as kind. When count
// is not AnyCount the number of matches must equal it exactly.
func (c *OutputCollector) Collect(workspace, pattern string, kind starsfile.Kind, count int) ([]CollectedFile, error) {
	names, err := c.match(workspace, pattern)
	if err != nil {
		return nil, err
	}
	if count != AnyCount && len(names) != count {
		return nil, &EngineOutputError{Pattern: pattern, Want: count, Got: len(names)}
	}

	files := make([]CollectedFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(workspace, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		f, err := starsfile.DecodeKind(c.codec, data, kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, CollectedFile{Name: name, Data: data, File: f})
	}
	c.log.Debug("collected engine output",
		zap.String("workspace", workspace),
		zap.String("pattern", pattern),
		zap.Int("files", len(files)))
	return files, nil
}

// CollectOne is Collect with a count of exactly one.
func (c *OutputCollector) CollectOne(workspace, pattern string, kind starsfile.Kind) (*CollectedFile, error) {
	files, err := c.Collect(workspace, pattern, kind, 1)
	if err != nil {
		return nil, err
	}
	return &files[0], nil
}
