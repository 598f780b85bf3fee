package unit

import (
	"path/filepath"
	"strings"

	"tcforge/internal/ledger"
	"tcforge/internal/stage"
	"tcforge/internal/workspace"
)

// Context is a unit bound to an optional pass and a workspace layout.
// It is recomputed for every step and never persisted.
type Context struct {
	Unit   Unit
	Pass   string
	Layout workspace.Layout
}

// NewContext binds u to pass within layout.
func NewContext(u Unit, pass string, layout workspace.Layout) Context {
	return Context{Unit: u, Pass: pass, Layout: layout}
}

// SourceDirName is name-version.
func (c Context) SourceDirName() string {
	return c.Unit.ID()
}

// ArchiveName is the cached archive file name.
func (c Context) ArchiveName() string {
	return c.SourceDirName() + c.Unit.Kind.Suffix()
}

// URL is location/archive for packed kinds and the location itself otherwise.
func (c Context) URL() string {
	if !c.Unit.Kind.Packed() {
		return c.Unit.Location
	}
	return strings.TrimRight(c.Unit.Location, "/") + "/" + c.ArchiveName()
}

// StepID names the plan step, "name" or "name/pass".
func (c Context) StepID() string {
	if c.Pass == "" {
		return c.Unit.Name
	}
	return c.Unit.Name + "/" + c.Pass
}

// ArchivePath is where the fetch stage leaves the archive.
func (c Context) ArchivePath() string {
	return filepath.Join(c.Layout.Archives, c.ArchiveName())
}

// SourceDir is the extracted tree, shared by all passes.
func (c Context) SourceDir() string {
	return filepath.Join(c.Layout.Sources, c.SourceDirName())
}

// BuildDir is the out-of-tree build directory of this pass.
func (c Context) BuildDir() string {
	name := c.SourceDirName()
	if c.Pass != "" {
		name += "-pass" + c.Pass
	}
	return filepath.Join(c.Layout.Build, name)
}

// Key returns the ledger key of a stage of this unit.
func (c Context) Key(stageName string) ledger.Key {
	return ledger.Key{Unit: c.SourceDirName(), Stage: stageName}
}

func (c Context) FetchKey() ledger.Key     { return c.Key(stage.Fetch) }
func (c Context) ExtractKey() ledger.Key   { return c.Key(stage.Extract) }
func (c Context) ConfigureKey() ledger.Key { return c.Key(stage.Configure(c.Pass)) }
func (c Context) InstallKey() ledger.Key   { return c.Key(stage.Install(c.Pass)) }

// MakeKey names the build stage for target; empty is the default goal.
func (c Context) MakeKey(target string) ledger.Key {
	return c.Key(stage.Make(target, c.Pass))
}
