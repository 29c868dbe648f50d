package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Test seams for the individual steps of AtomicWrite.
var (
	createTemp = os.CreateTemp
	chmodFile  = (*os.File).Chmod
	writeFile  = (*os.File).Write
	syncFile   = (*os.File).Sync
	closeFile  = (*os.File).Close
	rename     = os.Rename
)

// AtomicWrite replaces path with data. The data goes to a sibling temp file
// that gets perm before any byte is written and is flushed to disk before
// being renamed over path, so readers see either the old or the new file.
func AtomicWrite(path string, data []byte, perm os.FileMode) (err error) {
	fail := func(step string, err error) error {
		return fmt.Errorf("platform: atomic write %s: %s: %w", filepath.Base(path), step, err)
	}

	tmp, err := createTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fail("create temp", err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = closeFile(tmp)
		}
		os.Remove(tmp.Name())
	}()

	if err = chmodFile(tmp, perm); err != nil {
		return fail("chmod", err)
	}
	if _, err = writeFile(tmp, data); err != nil {
		return fail("write", err)
	}
	if err = syncFile(tmp); err != nil {
		return fail("sync", err)
	}
	closed = true
	if err = closeFile(tmp); err != nil {
		return fail("close", err)
	}
	if err = rename(tmp.Name(), path); err != nil {
		return fail("rename", err)
	}

	log.Debug().
		Str("component", "platform").
		Str("operation", "atomic_write").
		Str("path", path).
		Int("bytes", len(data)).
		Msg("file replaced")
	return nil
}
