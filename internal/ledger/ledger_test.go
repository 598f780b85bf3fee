package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkDoneIsDurable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "status")
	key := Key{Unit: "binutils-2.42", Stage: "configure"}

	l := NewFileLedger(dir)
	assert.False(t, l.IsDone(key))
	require.NoError(t, l.MarkDone(key))
	assert.True(t, l.IsDone(key))

	// a fresh ledger over the same directory sees the same state
	reopened := NewFileLedger(dir)
	assert.True(t, reopened.IsDone(key))

	info, err := os.Stat(l.Artifacts(key).Marker)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// marking twice is harmless
	require.NoError(t, l.MarkDone(key))
	assert.True(t, l.IsDone(key))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestArtifactsNaming(t *testing.T) {
	l := NewFileLedger("/ws/status")
	a := l.Artifacts(Key{Unit: "gcc-13.2.0", Stage: "make.all-gcc.1"})

	assert.Equal(t, "/ws/status/gcc-13.2.0.make.all-gcc.1.cmd", a.Command)
	assert.Equal(t, "/ws/status/gcc-13.2.0.make.all-gcc.1.out", a.Stdout)
	assert.Equal(t, "/ws/status/gcc-13.2.0.make.all-gcc.1.err", a.Stderr)
	assert.Equal(t, "/ws/status/gcc-13.2.0.make.all-gcc.1.done", a.Marker)
}

func TestStaleLogsAreNotDone(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLedger(dir)
	key := Key{Unit: "newlib-4.4.0", Stage: "make"}
	a := l.Artifacts(key)
	require.NoError(t, os.WriteFile(a.Command, []byte("make -j4\n"), 0o644))
	require.NoError(t, os.WriteFile(a.Stderr, []byte("partial\n"), 0o644))

	assert.False(t, l.IsDone(key))
}

func TestPassKeysAreIndependent(t *testing.T) {
	l := NewFileLedger(t.TempDir())
	pass1 := Key{Unit: "gcc-13.2.0", Stage: "configure.1"}
	pass2 := Key{Unit: "gcc-13.2.0", Stage: "configure.2"}

	require.NoError(t, l.MarkDone(pass1))
	assert.True(t, l.IsDone(pass1))
	assert.False(t, l.IsDone(pass2))
}

func TestInvalidKeys(t *testing.T) {
	l := NewFileLedger(t.TempDir())
	for _, k := range []Key{
		{Unit: "", Stage: "fetch"},
		{Unit: "gcc-13.2.0", Stage: ""},
		{Unit: "../etc", Stage: "fetch"},
		{Unit: "gcc", Stage: "make/x"},
	} {
		assert.ErrorIs(t, l.MarkDone(k), ErrInvalidKey, k.String())
		assert.False(t, l.IsDone(k))
	}
}
