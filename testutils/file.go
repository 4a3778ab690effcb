package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/volumescan/frame"
)

// TempDir creates a temporary directory and fails the test if it cannot.
func TempDir(t *testing.T, dir, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp(dir, pattern)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// WriteRecording writes samples as a JSON-lines recording under dir and returns its path.
func WriteRecording(t *testing.T, dir string, samples []*frame.Sample) string {
	t.Helper()
	path := filepath.Join(dir, "frames.jsonl")
	f, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, f.Close(), test.ShouldBeNil)
	}()
	w := frame.NewWriter(f)
	for _, s := range samples {
		test.That(t, w.Write(s), test.ShouldBeNil)
	}
	return path
}
