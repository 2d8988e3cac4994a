package declare

import (
	"fmt"
	"plugin"

	"github.com/cboone/tact/internal/suite"
)

// RegisterFunc is the symbol every transformed test file plugin exports.
type RegisterFunc func(d *Declarator)

// LoadFile opens the plugin at loadPath, creates a file Suite as a child
// of project, and invokes the plugin's Register function with a fresh
// Declarator scoped to this call. It returns the populated file Suite and
// the FileRegistry mapping test ids to callables, for the caller (main
// process Loader or worker-side runtime) to use as it sees fit.
func LoadFile(project *suite.Suite, fileTitle, loadPath string) (*suite.Suite, *FileRegistry, error) {
	fileSuite, err := project.AddChild(fileTitle, suite.File)
	if err != nil {
		return nil, nil, fmt.Errorf("declare: load %s: %w", loadPath, err)
	}
	fileSuite.Source = loadPath

	p, err := plugin.Open(loadPath)
	if err != nil {
		return nil, nil, fmt.Errorf("declare: load %s: opening plugin: %w", loadPath, err)
	}
	sym, err := p.Lookup("Register")
	if err != nil {
		return nil, nil, fmt.Errorf("declare: load %s: missing Register symbol: %w", loadPath, err)
	}
	register, ok := sym.(func(*Declarator))
	if !ok {
		return nil, nil, fmt.Errorf("declare: load %s: Register has unexpected signature %T", loadPath, sym)
	}

	// The file node's own declaration row has no meaningful call site once
	// a file is a compiled plugin (there is no source "test.describe"-like
	// call that declares the file itself); per spec.md §4.B/§9 this falls
	// back to 0, producing the stable "title:0:0" segment for every file.
	// Test ids are derived as declarations happen, so FileRow must be
	// fixed before Register runs.
	d, reg := NewForFile(fileSuite)
	register(d)

	return fileSuite, reg, nil
}
