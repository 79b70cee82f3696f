package workspace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/danielolaszy/archprompt/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(filepath.FromSlash(f)), 0o755))
		require.NoError(t, afero.WriteFile(fs, filepath.FromSlash(f), []byte("x"), 0o644))
	}
	return fs
}

func TestAppDir(t *testing.T) {
	root := filepath.FromSlash("/repo")

	tests := []struct {
		name  string
		files []string
		apps  map[string]config.AppConfig
		app   string
		want  string
	}{
		{
			name:  "Configured path",
			files: []string{"/repo/apps/billing/main.py"},
			apps:  map[string]config.AppConfig{"billing": {Path: filepath.FromSlash("/repo/services/billing")}},
			app:   "billing",
			want:  "services/billing",
		},
		{
			name:  "Apps directory",
			files: []string{"/repo/apps/billing/main.py", "/repo/billing/README.md"},
			app:   "billing",
			want:  "apps/billing",
		},
		{
			name:  "Top-level directory",
			files: []string{"/repo/billing/README.md", "/repo/src/billing/x.go"},
			app:   "billing",
			want:  "billing",
		},
		{
			name:  "Packages directory",
			files: []string{"/repo/packages/billing/index.ts"},
			app:   "billing",
			want:  "packages/billing",
		},
		{
			name: "Fallback",
			app:  "billing",
			want: "apps/billing",
		},
		{
			name: "No app",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.ProjectConfig{Apps: tt.apps}
			ws := NewWithFs(memFs(t, tt.files...), root)
			assert.Equal(t, tt.want, ws.AppDir(cfg, tt.app))
		})
	}
}

func TestListFiles(t *testing.T) {
	fs := memFs(t,
		"/repo/apps/billing/main.py",
		"/repo/apps/billing/api/views.py",
		"/repo/apps/billing/node_modules/lib/index.js",
		"/repo/apps/billing/__pycache__/main.cpython-312.pyc",
		"/repo/apps/shop/main.py",
		"/repo/README.md",
		"/shared/billing/main.py",
	)
	ws := NewWithFs(fs, filepath.FromSlash("/repo"))

	t.Run("App directory", func(t *testing.T) {
		got, err := ws.ListFiles(context.Background(), "apps/billing")
		require.NoError(t, err)
		assert.Equal(t, SourceLocal, got.Source)
		assert.Equal(t, "apps/billing", got.Root)
		assert.Equal(t, []string{"apps/billing/api/views.py", "apps/billing/main.py"}, got.Files)
	})

	t.Run("Whole repository", func(t *testing.T) {
		got, err := ws.ListFiles(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"README.md",
			"apps/billing/api/views.py",
			"apps/billing/main.py",
			"apps/shop/main.py",
		}, got.Files)
	})

	t.Run("Absolute directory inside the root", func(t *testing.T) {
		got, err := ws.ListFiles(context.Background(), "/repo/apps/shop")
		require.NoError(t, err)
		assert.Equal(t, []string{"apps/shop/main.py"}, got.Files)
	})

	t.Run("Absolute directory outside the root", func(t *testing.T) {
		cfg := &config.ProjectConfig{Apps: map[string]config.AppConfig{"billing": {Path: "/shared/billing"}}}
		dir := ws.AppDir(cfg, "billing")
		require.Equal(t, "/shared/billing", dir)

		got, err := ws.ListFiles(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, "/shared/billing", got.Root)
		assert.Equal(t, []string{"/shared/billing/main.py"}, got.Files)
	})

	t.Run("Missing directory", func(t *testing.T) {
		got, err := ws.ListFiles(context.Background(), "apps/nope")
		require.NoError(t, err)
		assert.Equal(t, []string{}, got.Files)
	})

	t.Run("Limit", func(t *testing.T) {
		limited := NewWithFs(fs, filepath.FromSlash("/repo"))
		limited.MaxFiles = 1
		got, err := limited.ListFiles(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, []string{"README.md"}, got.Files)
	})
}

func TestSkipDir(t *testing.T) {
	assert.True(t, SkipDir(".git"))
	assert.True(t, SkipDir("node_modules"))
	assert.False(t, SkipDir("src"))
}
