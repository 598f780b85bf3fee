package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcforge/internal/unit"
)

const twoUnits = `
units:
  - name: foo
    version: "1.0"
    archive: tgz
    location: https://example.org/foo
  - name: bar
    version: "2.0"
    archive: bzip2
    location: https://example.org/bar
plan:
  - unit: foo
    configure: ["--prefix=${PREFIX}"]
  - unit: bar
    pass: "1"
    requires: [foo]
    make: {target: all-bar}
  - unit: bar
    pass: "2"
    requires: [bar/1]
    make:
      vars: {EXTRA: "1"}
`

func TestDefaultManifest(t *testing.T) {
	m := Default()
	ids := make([]string, 0, len(m.Plan))
	for _, s := range m.Plan {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"binutils", "gcc/1", "newlib", "gcc/2", "gdb"}, ids)

	gcc1, ok := m.Step("gcc/1")
	require.True(t, ok)
	assert.Equal(t, "all-gcc", gcc1.Make.Target)
	assert.Equal(t, "install-gcc", gcc1.InstallTarget())

	gcc2, _ := m.Step("gcc/2")
	assert.Equal(t, "install", gcc2.InstallTarget())
	assert.Equal(t, "-DUSE_TM_CLONE_REGISTRY=0", gcc2.Make.Vars["INHIBIT_LIBC_CFLAGS"])

	u, err := m.UnitByName("binutils")
	require.NoError(t, err)
	assert.Equal(t, unit.TarBz2, u.Kind)
	assert.Equal(t, "binutils-2.42", u.ID())
}

func TestParseYAML(t *testing.T) {
	m, err := ParseYAML([]byte(twoUnits))
	require.NoError(t, err)
	require.Len(t, m.Plan, 3)
	assert.Equal(t, "bar/2", m.Plan[2].ID())
	assert.Equal(t, map[string]string{"EXTRA": "1"}, m.Plan[2].Make.Vars)

	u, err := m.UnitByName("foo")
	require.NoError(t, err)
	assert.Equal(t, unit.TarGz, u.Kind)
}

func TestParseTOML(t *testing.T) {
	data := `
[[units]]
name = "foo"
version = "1.0"
archive = "tar.gz"
location = "https://example.org/foo"

[[plan]]
unit = "foo"
configure = ["--prefix=${PREFIX}"]

[plan.make]
target = "all"
`
	path := filepath.Join(t.TempDir(), "m.toml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Plan, 1)
	assert.Equal(t, "all", m.Plan[0].Make.Target)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"empty plan": `
units: [{name: a, version: "1", archive: tgz, location: "https://x"}]
`,
		"unknown unit": `
units: [{name: a, version: "1", archive: tgz, location: "https://x"}]
plan: [{unit: b}]
`,
		"requires later step": `
units:
  - {name: a, version: "1", archive: tgz, location: "https://x"}
  - {name: b, version: "1", archive: tgz, location: "https://x"}
plan: [{unit: a, requires: [b]}, {unit: b}]
`,
		"duplicate step": `
units: [{name: a, version: "1", archive: tgz, location: "https://x"}]
plan: [{unit: a}, {unit: a}]
`,
		"bad archive": `
units: [{name: a, version: "1", archive: rar, location: "https://x"}]
plan: [{unit: a}]
`,
		"unknown key": `
units: [{name: a, version: "1", archive: tgz, location: "https://x", mirror: y}]
plan: [{unit: a}]
`,
		"dotted pass": `
units: [{name: a, version: "1", archive: tgz, location: "https://x"}]
plan: [{unit: a, pass: "1.5"}]
`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML([]byte(data))
			assert.Error(t, err)
		})
	}
}
