// Package workspace locates app directories in the local checkout and lists
// their files.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/payload"
	"github.com/spf13/afero"
)

// SourceLocal marks listings made from the local checkout.
const SourceLocal = "local"

var skipDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".idea":         true,
	".vscode":       true,
	".venv":         true,
	"venv":          true,
	"node_modules":  true,
	"vendor":        true,
	"__pycache__":   true,
	".pytest_cache": true,
	".mypy_cache":   true,
	"dist":          true,
	"build":         true,
	"target":        true,
}

var errLimit = errors.New("file limit reached")

// SkipDir reports whether a directory name is excluded from listings.
func SkipDir(name string) bool {
	return skipDirs[name]
}

// appParents are the directories searched for an app, in order.
var appParents = []string{"apps", "", "src", "backend", "modules", "packages"}

// Workspace is the local checkout rooted at the monorepo root.
type Workspace struct {
	fs   afero.Fs
	root string
	// MaxFiles caps the listing, no limit when zero.
	MaxFiles int
}

// DefaultMaxFiles caps listings of workspaces created by New.
const DefaultMaxFiles = 5000

// New returns a workspace on the OS file system.
func New(root string) *Workspace {
	w := NewWithFs(afero.NewOsFs(), root)
	w.MaxFiles = DefaultMaxFiles
	return w
}

// NewWithFs returns a workspace on fs.
func NewWithFs(fs afero.Fs, root string) *Workspace {
	return &Workspace{fs: fs, root: filepath.Clean(root)}
}

// Root returns the monorepo root.
func (w *Workspace) Root() string {
	return w.root
}

// AppDir returns the directory of app relative to the root, in slash form.
// A configured apps.<app>.path wins; otherwise the first existing directory
// among apps/<app>, <app>, src/<app>, backend/<app>, modules/<app> and
// packages/<app> is used. apps/<app> is the fallback when none exists.
func (w *Workspace) AppDir(cfg *config.ProjectConfig, app string) string {
	if appCfg, ok := cfg.App(app); ok && appCfg.Path != "" {
		return w.rel(appCfg.Path)
	}
	if app == "" {
		return ""
	}
	for _, parent := range appParents {
		dir := filepath.Join(w.root, parent, app)
		if ok, _ := afero.DirExists(w.fs, dir); ok {
			logging.Debug("found app directory", "app", app, "dir", dir)
			return w.rel(dir)
		}
	}
	return filepath.ToSlash(filepath.Join("apps", app))
}

func (w *Workspace) rel(dir string) string {
	if !filepath.IsAbs(dir) {
		return filepath.ToSlash(filepath.Clean(dir))
	}
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(dir)
	}
	if rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// ListFiles lists the files below root (relative to the workspace root,
// empty for everything, or absolute). Paths are relative to the workspace
// root; files outside it keep their absolute path.
func (w *Workspace) ListFiles(ctx context.Context, root string) (payload.Repository, error) {
	start := filepath.FromSlash(root)
	if !filepath.IsAbs(start) {
		start = filepath.Join(w.root, start)
	}
	files := []string{}

	if ok, _ := afero.DirExists(w.fs, start); !ok {
		logging.Warn("app directory does not exist", "dir", start)
		return payload.Repository{Source: SourceLocal, Root: root, Files: files}, nil
	}

	err := afero.Walk(w.fs, start, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if p != start && SkipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.MaxFiles > 0 && len(files) >= w.MaxFiles {
			return errLimit
		}
		files = append(files, w.rel(p))
		return nil
	})
	if errors.Is(err, errLimit) {
		logging.Warn("file listing truncated", "root", root, "max_files", w.MaxFiles)
	} else if err != nil {
		return payload.Repository{}, fmt.Errorf("failed to list %s: %w", start, err)
	}

	logging.Info("listed local files", "root", root, "count", len(files))
	return payload.Repository{Source: SourceLocal, Root: root, Files: files}, nil
}
