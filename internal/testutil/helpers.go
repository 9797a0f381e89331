package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"starload/internal/catalog"
	"starload/internal/common"
)

// SampleConfig is a complete dwh.cfg for a Redshift cluster.
const SampleConfig = `[S3]
LOG_DATA = 's3://udacity-dend/log_data'
LOG_JSONPATH = 's3://udacity-dend/log_json_path.json'
SONG_DATA = 's3://udacity-dend/song_data'

[IAM_ROLE]
ARN = 'arn:aws:iam::123456789012:role/dwhRole'

[CLUSTER]
DSN = 'redshift://dwhuser@dwhcluster.abc123.us-west-2.redshift.amazonaws.com:5439/dwh'
TIMEOUT = '5m'
`

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	path := filepath.Join(dir, filename)

	// Create parent directories if needed
	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionSecure); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), common.FilePermissionSecure); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}

	return path
}

// WriteConfig writes SampleConfig plus extra lines to dir/dwh.cfg and
// isolates HOME so no real configuration is picked up.
func (h *TestHelper) WriteConfig(extra string) string {
	h.t.Setenv("HOME", h.t.TempDir())
	h.t.Setenv("STARLOAD_CONFIG", "")
	return h.WriteFile(h.t.TempDir(), "dwh.cfg", SampleConfig+extra)
}

// CaptureOutput captures stdout and stderr during function execution
func (h *TestHelper) CaptureOutput(f func()) (stdout, stderr string) {
	// Capture stdout
	oldStdout := os.Stdout
	rOut, wOut, _ := os.Pipe()
	os.Stdout = wOut

	// Capture stderr
	oldStderr := os.Stderr
	rErr, wErr, _ := os.Pipe()
	os.Stderr = wErr

	outCh := make(chan string)
	errCh := make(chan string)
	go func() {
		b, _ := io.ReadAll(rOut)
		outCh <- string(b)
	}()
	go func() {
		b, _ := io.ReadAll(rErr)
		errCh <- string(b)
	}()

	// Execute function
	f()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	return <-outCh, <-errCh
}

// Sources returns valid bulk-load sources.
func Sources() catalog.Sources {
	return catalog.Sources{
		LogData:     "s3://udacity-dend/log_data",
		LogJSONPath: "s3://udacity-dend/log_json_path.json",
		SongData:    "s3://udacity-dend/song_data",
		IAMRoleARN:  "arn:aws:iam::123456789012:role/dwhRole",
	}
}

// Catalog renders a catalog for Sources in the given dialect.
func Catalog(t *testing.T, d catalog.Dialect) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(Sources(), catalog.WithDialect(d))
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	return c
}
