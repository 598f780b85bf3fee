package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tcforge.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	require.NoError(t, err)

	assert.Equal(t, defaultRoot, cfg.Root)
	assert.Equal(t, defaultTarget, cfg.Target)
	assert.Equal(t, runtime.NumCPU(), cfg.Jobs)
	assert.Equal(t, defaultTailLines, cfg.TailLines)
	assert.Equal(t, defaultGNUMirror, cfg.GNUMirror)
	assert.Equal(t, filepath.Join(defaultRoot, "install"), cfg.InstallPrefix())
	assert.Equal(t, "auto", cfg.S3.Region)
	assert.False(t, cfg.S3.Configured())
}

func TestLoadFileValues(t *testing.T) {
	path := writeConf(t, `# workspace
TCFORGE_ROOT="/srv/tc"
TCFORGE_TARGET=msp430-elf
TCFORGE_JOBS=3
GNU_MIRROR=https://ftpmirror.gnu.org/gnu/
S3_BUCKET=archives
S3_ACCESS_KEY_ID=AKID
S3_SECRET_ACCESS_KEY=secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/tc", cfg.Root)
	assert.Equal(t, "msp430-elf", cfg.Target)
	assert.Equal(t, 3, cfg.Jobs)
	assert.Equal(t, "https://ftpmirror.gnu.org/gnu", cfg.GNUMirror)
	assert.True(t, cfg.S3.Configured())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConf(t, "TCFORGE_TARGET=msp430-elf\nTCFORGE_DEBUG=0\n")
	t.Setenv("TCFORGE_TARGET", "riscv32-unknown-elf")
	t.Setenv("TCFORGE_DEBUG", "1")
	t.Setenv("TCFORGE_PREFIX", "/opt/cross")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "riscv32-unknown-elf", cfg.Target)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/opt/cross", cfg.InstallPrefix())
}

func TestInvalidJobs(t *testing.T) {
	for _, v := range []string{"zero", "0", "-2"} {
		path := writeConf(t, "TCFORGE_JOBS="+v+"\n")
		_, err := Load(path)
		assert.Error(t, err, v)
	}
}

func TestNiceAndMirrorOff(t *testing.T) {
	path := writeConf(t, "TCFORGE_NICE=1\nGNU_MIRROR=off\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Nice)
	assert.Empty(t, cfg.GNUMirror)
}

func TestS3NeedsBucketAndKeys(t *testing.T) {
	assert.False(t, S3Config{Bucket: "archives"}.Configured())
	assert.False(t, S3Config{AccessKeyID: "AKID", SecretAccessKey: "secret"}.Configured())
	assert.True(t, S3Config{Bucket: "archives", AccessKeyID: "AKID", SecretAccessKey: "secret"}.Configured())
}
