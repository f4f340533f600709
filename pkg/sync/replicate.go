package sync

import (
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/aethersync/pkg/errors"
)

// Replicate copies the contents of `sourceFile` into `targetDir`, creating
// `targetDir` if it doesn't exist. The copy is named after the base name of
// the source, so files with the same name in different source directories
// overwrite each other.
func Replicate(fs afero.Fs, sourceFile, targetDir string) error {
	dst := destination(sourceFile, targetDir)
	if filepath.Clean(sourceFile) == dst {
		// The source is already in place. Opening the destination would
		// truncate it.
		return nil
	}

	targetExists, err := afero.DirExists(fs, targetDir)
	if err != nil {
		return errors.WithContext(err, "check if target exists")
	}

	if !targetExists {
		if err := fs.MkdirAll(targetDir, 0755); err != nil {
			return errors.WithContext(err, "make target")
		}
	}

	srcFile, err := fs.Open(sourceFile)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	dstFile, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.WithContext(err, "copy")
	}

	if err := fs.Chmod(dst, fileInfo.Mode().Perm()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	if err := dstFile.Close(); err != nil {
		return errors.WithContext(err, "close destination")
	}
	return nil
}

// destination returns the path that `sourceFile` is copied to.
func destination(sourceFile, targetDir string) string {
	return filepath.Join(targetDir, filepath.Base(sourceFile))
}
