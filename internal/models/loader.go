package models

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"go.uber.org/zap"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// SearchPathEnv overrides the configured model search path when set.
const SearchPathEnv = "SUNS_MODELPATH"

func isModelFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func LoadFile(path string) ([]*sunspec.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	models, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return models, nil
}

// LoadDir loads every model file of dir in name order. Files starting with a
// dot are skipped.
func LoadDir(dir string) ([]*sunspec.Model, error) {
	return loadFS(os.DirFS(dir), ".", dir)
}

// Builtin returns the models shipped with the binary.
func Builtin() ([]*sunspec.Model, error) {
	return loadFS(builtinFS, "builtin", "builtin")
}

func loadFS(fsys fs.FS, dir string, label string) ([]*sunspec.Model, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isModelFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	var models []*sunspec.Model
	for _, name := range names {
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, name)))
		if err != nil {
			return nil, err
		}
		ms, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", label, name, err)
		}
		models = append(models, ms...)
	}
	return models, nil
}

// Loader builds a DidTable from the builtin models and a colon separated
// search path of directories or files. Later sources override dids of earlier
// ones.
type Loader struct {
	SearchPath     string
	DisableBuiltin bool
	Diagnostics    sunspec.Diagnostics
	logger         *zap.Logger
}

func NewLoader(searchPath string, disableBuiltin bool, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		SearchPath:     searchPath,
		DisableBuiltin: disableBuiltin,
		Diagnostics:    sunspec.ZapDiagnostics(logger),
		logger:         logger,
	}
}

// Load resolves every model and returns the did table. Unreadable search path
// entries are logged and skipped; a malformed model file is an error.
func (l *Loader) Load() (*sunspec.DidTable, error) {
	table := sunspec.NewDidTable()

	if !l.DisableBuiltin {
		models, err := Builtin()
		if err != nil {
			return nil, fmt.Errorf("builtin models: %w", err)
		}
		if err := l.add(table, "builtin", models); err != nil {
			return nil, err
		}
	}

	for _, entry := range filepath.SplitList(l.SearchPath) {
		if entry == "" {
			continue
		}
		info, err := os.Stat(entry)
		if err != nil {
			l.logger.Warn("skipping model path", zap.String("path", entry), zap.Error(err))
			continue
		}
		var models []*sunspec.Model
		if info.IsDir() {
			models, err = LoadDir(entry)
		} else {
			models, err = LoadFile(entry)
		}
		if err != nil {
			return nil, err
		}
		if err := l.add(table, entry, models); err != nil {
			return nil, err
		}
	}

	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: no models loaded", ErrInvalidModel)
	}
	l.logger.Info("models loaded", zap.Int("dids", table.Len()), zap.Stringer("table", table))
	return table, nil
}

// add resolves models and merges them into table. Dids must be unique within
// one source.
func (l *Loader) add(table *sunspec.DidTable, source string, models []*sunspec.Model) error {
	local := sunspec.NewDidTable()
	for _, m := range models {
		if err := sunspec.ResolveOffsets(m, l.Diagnostics); err != nil {
			if !errors.Is(err, sunspec.ErrRepeatingBlockNotLast) {
				return fmt.Errorf("%s: %w", source, err)
			}
			// offsets are still filled in, keep the model
			l.logger.Error("model layout", zap.String("source", source), zap.Error(err))
		}
		if err := local.Add(m, false); err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
	}
	for _, m := range models {
		for _, md := range m.Dids {
			if prev, ok := table.Lookup(md.Did); ok {
				l.logger.Info("model overridden", zap.Uint16("did", md.Did),
					zap.String("previous", prev.Model.Name), zap.String("model", m.Name), zap.String("source", source))
			}
		}
		if err := table.Add(m, true); err != nil {
			return err
		}
	}
	return nil
}

// BuildDidTable is a shortcut for NewLoader(...).Load(). SUNS_MODELPATH, when
// set, replaces searchPath.
func BuildDidTable(searchPath string, disableBuiltin bool, logger *zap.Logger) (*sunspec.DidTable, error) {
	if env, ok := os.LookupEnv(SearchPathEnv); ok {
		searchPath = env
	}
	return NewLoader(searchPath, disableBuiltin, logger).Load()
}
