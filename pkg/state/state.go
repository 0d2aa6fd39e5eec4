// Package state owns the on-disk runtime layout under the DB path.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the canonical runtime folder layout under the DB path.
type Paths struct {
	Store     string
	Telemetry string
	Crash     string
	Abort     string
	Tmp       string
}

// PathsVar is populated by EnsureStateDirs during startup.
var PathsVar Paths

// EnsureStateDirs ensures the canonical runtime folder layout exists under
// the provided DB path. It rejects symlinks, tightens permissions and
// verifies the process can write to each directory.
func EnsureStateDirs(dbPath string) error {
	p := Paths{
		Store:     filepath.Join(dbPath, "store"),
		Telemetry: filepath.Join(dbPath, "state", "telemetry"),
		Crash:     filepath.Join(dbPath, "state", "crash"),
		Abort:     filepath.Join(dbPath, "state", "abort"),
		Tmp:       filepath.Join(dbPath, "state", "tmp"),
	}

	for _, dir := range []string{p.Store, p.Telemetry, p.Crash, p.Abort, p.Tmp} {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", dir, err)
		}
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("state path %s is a symlink", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("state path %s exists and is not a directory", dir)
			}
		} else if os.IsNotExist(err) {
			if err := os.Mkdir(dir, 0o700); err != nil {
				return fmt.Errorf("cannot create %s: %w", dir, err)
			}
		} else {
			return fmt.Errorf("cannot stat %s: %w", dir, err)
		}
		_ = os.Chmod(dir, 0o700)

		probe := filepath.Join(dir, ".writable")
		if err := os.WriteFile(probe, nil, 0o600); err != nil {
			return fmt.Errorf("state path %s is not writable: %w", dir, err)
		}
		_ = os.Remove(probe)
	}

	PathsVar = p
	return nil
}
