package sync

import (
	"context"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/aethersync/ci/util"
)

type file struct {
	path     string
	contents string
	mode     os.FileMode
}

func (f file) WithContents(contents string) file {
	f.contents = contents
	return f
}

func (f file) WithMode(mode os.FileMode) file {
	f.mode = mode
	return f
}

func randomFile(path string) file {
	return file{
		path:     path,
		contents: strconv.Itoa(rand.Int()),
		mode:     os.FileMode(0640 | rand.Intn(8)),
	}
}

func (f file) write(root string) error {
	path := filepath.Join(root, f.path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, []byte(f.contents), f.mode); err != nil {
		return err
	}
	return os.Chmod(path, f.mode)
}

// matches returns whether the flattened copy of `f` in `target` has the
// expected contents and mode.
func (f file) matches(target string) bool {
	path := filepath.Join(target, filepath.Base(f.path))
	contents, err := ioutil.ReadFile(path)
	if err != nil || string(contents) != f.contents {
		return false
	}

	fi, err := os.Stat(path)
	return err == nil && fi.Mode().Perm() == f.mode
}

// Test runs `aethersync sync` and checks that changes in the watch directory
// are mirrored into the target directory.
func Test(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithCancel(context.Background())
	stdout, errChan, err := helper.Start(ctx, "sync", "--poll-interval", "100ms",
		helper.WatchPath, helper.TargetPath)
	require.NoError(t, err)

	waitCtx, cancelWait := context.WithTimeout(ctx, 30*time.Second)
	defer cancelWait()
	require.True(t, util.TestWithRetry(waitCtx, func() bool {
		return strings.Contains(stdout.String(), "Press Ctrl-C to stop.")
	}), "sync never started")

	refFile := randomFile("nested/dir/test-file")
	tests := []struct {
		name string
		file file
	}{
		{"CreateNested", refFile},
		{"ChangeContents", refFile.WithContents("changed contents")},
		{"ChangeMode", refFile.WithMode(0600)},
		{"CreateTopLevel", randomFile("top-level")},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, test.file.write(helper.WatchPath))

			testCtx, cancelTest := context.WithTimeout(ctx, 30*time.Second)
			defer cancelTest()
			assert.True(t, util.TestWithRetry(testCtx, func() bool {
				return test.file.matches(helper.TargetPath)
			}))
		})
	}

	t.Run("DeletionsAreIgnored", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(helper.WatchPath, "top-level")))
		time.Sleep(time.Second)
		_, err := os.Stat(filepath.Join(helper.TargetPath, "top-level"))
		assert.NoError(t, err)
	})

	t.Run("NoNestedDirectories", func(t *testing.T) {
		_, err := os.Stat(filepath.Join(helper.TargetPath, "nested"))
		assert.True(t, os.IsNotExist(err))
	})

	cancel()
	assert.NoError(t, <-errChan)
}
