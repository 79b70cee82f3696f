package prompt

import (
	"path"
	"strings"

	"github.com/danielolaszy/archprompt/internal/payload"
)

// DefaultAllowedPaths returns the paths an implement prompt may touch for a
// stack profile. appDir is the app directory relative to the project root,
// in slash form. Unknown profiles get the generic list.
func DefaultAllowedPaths(profile, appDir string) []string {
	base := strings.TrimSuffix(path.Clean(strings.ReplaceAll(appDir, "\\", "/")), "/")

	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "django", "django-rest", "python-django":
		files := []string{
			"models.py", "migrations/", "tests/", "admin.py", "serializers.py", "views.py",
			"urls.py", "schemas.py", "selectors.py", "services.py", "forms.py", "fixtures/",
		}
		out := make([]string, 0, len(files))
		for _, f := range files {
			out = append(out, base+"/"+f)
		}
		return out
	case "java-selenium", "selenium-java", "qa-selenium":
		// Maven/Gradle layout at the project root.
		return []string{
			"src/test/java/",
			"src/test/resources/",
			"src/main/resources/",
			"pom.xml",
			"build.gradle",
			"gradle.properties",
		}
	default:
		return []string{base + "/", "README.md", "docs/", "tests/"}
	}
}

// ParseAllowList splits a comma separated --allow value.
func ParseAllowList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AllowedPaths combines the profile defaults, used only in ticket-only
// scope, with the extra --allow paths.
func AllowedPaths(scope payload.Scope, profile, appDir string, extra []string) []string {
	var out []string
	if scope == payload.ScopeTicketOnly || scope == "" {
		out = append(out, DefaultAllowedPaths(profile, appDir)...)
	}
	return append(out, extra...)
}
