package changes

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name      string
		paths     []string
		decidable bool
		flavors   []string
		checks    []string
	}{
		{
			name:      "check source",
			paths:     []string{"checks.d/redisdb.py"},
			decidable: true,
			checks:    []string{"redisdb"},
			flavors:   []string{"redis"},
		},
		{
			name:      "integration and mock tests",
			paths:     []string{"tests/checks/integration/test_elastic.py", "tests/checks/mock/test_disk.py"},
			decidable: true,
			checks:    []string{"disk", "elastic"},
			flavors:   []string{"elasticsearch", "system"},
		},
		{
			name:      "fixtures and conf.d are ignored",
			paths:     []string{"tests/checks/fixtures/nginx/status.txt", "conf.d/nginx.yaml.example"},
			decidable: true,
		},
		{
			name:      "unknown check keeps its name",
			paths:     []string{"checks.d/postgres.py"},
			decidable: true,
			checks:    []string{"postgres"},
			flavors:   []string{"postgres"},
		},
		{
			name:      "core change is undecidable",
			paths:     []string{"checks.d/redisdb.py", "agent.py"},
			decidable: false,
		},
		{
			name:      "empty change set",
			paths:     nil,
			decidable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			impact := Analyze(tt.paths)
			assert.Equal(t, tt.decidable, impact.Decidable)
			if !tt.decidable {
				return
			}
			assert.Equal(t, tt.flavors, impact.Flavors)
			assert.Equal(t, tt.checks, impact.Checks)
		})
	}
}

func TestAnalyze_Undecided(t *testing.T) {
	impact := Analyze([]string{"tests/checks/fixtures/x", "Rakefile", "utils/y.py"})
	assert.False(t, impact.Decidable)
	assert.Equal(t, "Rakefile", impact.Undecided)
}

func TestAnalyzer_FlavorGlobs(t *testing.T) {
	a := NewAnalyzer(map[string][]string{
		"redis":    {"ci/resources/redis/*"},
		"postgres": {"ci/resources/postgres/*", "ci/postgres*"},
	})

	impact := a.Analyze([]string{"ci/resources/redis/auth.conf", "checks.d/mcache.py"})
	require.True(t, impact.Decidable)
	assert.Equal(t, []string{"memcache", "redis"}, impact.Flavors)

	impact = a.Analyze([]string{"ci/resources/kafka/server.properties"})
	assert.False(t, impact.Decidable)
}

func TestTranslateCheck(t *testing.T) {
	aliases := map[string]string{
		"couch":      "couchdb",
		"disk":       "system",
		"network":    "system",
		"tcp_check":  "system",
		"http_check": "system",
		"sysstat":    "system",
		"elastic":    "elasticsearch",
		"gearmand":   "gearman",
		"mongo":      "mongodb",
		"mcache":     "memcache",
		"php_fpm":    "phpfpm",
		"redisdb":    "redis",
		"ssh_check":  "ssh",
		"zk":         "zookeeper",
		"nginx":      "nginx",
	}
	for check, flavor := range aliases {
		assert.Equal(t, flavor, TranslateCheck(check), check)
	}
}

func TestImpact_Affects(t *testing.T) {
	impact := Impact{Decidable: true, Flavors: []string{"redis"}}
	assert.True(t, impact.Affects("redis"))
	assert.False(t, impact.Affects("postgres"))

	undecidable := Impact{Decidable: false}
	assert.True(t, undecidable.Affects("postgres"))
}

const sampleDiff = `diff --git a/checks.d/redisdb.py b/checks.d/redisdb.py
index 1111111..2222222 100644
--- a/checks.d/redisdb.py
+++ b/checks.d/redisdb.py
@@ -1,2 +1,2 @@
 import redis
-x = 1
+x = 2
diff --git a/conf.d/new.yaml.example b/conf.d/new.yaml.example
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/conf.d/new.yaml.example
@@ -0,0 +1 @@
+init_config:
`

func TestParsePaths(t *testing.T) {
	paths, err := ParsePaths([]byte(sampleDiff))
	require.NoError(t, err)
	assert.Equal(t, []string{"checks.d/redisdb.py", "conf.d/new.yaml.example"}, paths)

	paths, err = ParsePaths([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestDetector_StaticSource(t *testing.T) {
	d := &Detector{Source: StaticSource{"checks.d/zk.py"}}

	impact, err := d.Impact(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"zookeeper"}, impact.Flavors)
}

func TestGitSource_NoRange(t *testing.T) {
	_, err := (&GitSource{Commit: "abc"}).ChangedPaths(context.Background())
	assert.ErrorIs(t, err, ErrNoRange)
}

func TestGitSource_Repository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{
			"-c", "user.email=ci@example.com",
			"-c", "user.name=ci",
			"-c", "commit.gpgsign=false",
		}, args...)...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	write := func(name, content string) {
		t.Helper()
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	git("init", "-q")
	write("checks.d/redisdb.py", "x = 1\n")
	write("agent.py", "print(1)\n")
	git("add", ".")
	git("commit", "-q", "-m", "base")
	git("branch", "base")

	write("checks.d/redisdb.py", "x = 2\n")
	write("tests/checks/mock/test_mcache.py", "pass\n")
	git("add", ".")
	git("commit", "-q", "-m", "change")

	src := &GitSource{Dir: dir, Commit: "HEAD", Branch: "base"}
	paths, err := src.ChangedPaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"checks.d/redisdb.py", "tests/checks/mock/test_mcache.py"}, paths)

	impact := Analyze(paths)
	assert.True(t, impact.Decidable)
	assert.Equal(t, []string{"memcache", "redis"}, impact.Flavors)
}
