package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"starload/internal/catalog"
	"starload/pkg/errors"
)

// memInspector serves every bucket name from one in-memory bucket seeded with keys.
func memInspector(t *testing.T, keys ...string) (*Inspector, *int) {
	t.Helper()
	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	for _, key := range keys {
		require.NoError(t, bucket.WriteAll(ctx, key, []byte(`{"num_songs": 1}`), nil))
	}

	opened := 0
	insp := NewInspectorWithOpener(func(ctx context.Context, loc Location) (*blob.Bucket, error) {
		opened++
		return bucket, nil
	})
	t.Cleanup(func() { _ = insp.Close() })
	return insp, &opened
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "s3://udacity-dend/log_data", want: Location{Scheme: "s3", Bucket: "udacity-dend", Key: "log_data"}},
		{raw: "'s3://udacity-dend/log_json_path.json'", want: Location{Scheme: "s3", Bucket: "udacity-dend", Key: "log_json_path.json"}},
		{raw: "s3://bucket", want: Location{Scheme: "s3", Bucket: "bucket"}},
		{raw: "udacity-dend/log_data", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckPrefix(t *testing.T) {
	insp, opened := memInspector(t,
		"song_data/A/A/A/TRAAAAK128F9318786.json",
		"song_data/A/A/B/TRAABJL12903CDCF1A.json",
		"log_data/2018/11/2018-11-01-events.json",
	)
	ctx := context.Background()

	report, err := insp.CheckPrefix(ctx, "s3://udacity-dend/song_data")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Objects)
	assert.False(t, report.Truncated)
	assert.Contains(t, report.Sample, "song_data/A/A/A/TRAAAAK128F9318786.json")

	_, err = insp.CheckPrefix(ctx, "s3://udacity-dend/log_data")
	require.NoError(t, err)
	assert.Equal(t, 1, *opened, "bucket should be opened once and reused")
}

func TestCheckPrefixTruncates(t *testing.T) {
	var keys []string
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		keys = append(keys, "log_data/"+k+".json")
	}
	insp, _ := memInspector(t, keys...)

	report, err := insp.CheckPrefix(context.Background(), "s3://udacity-dend/log_data")
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleLimit, report.Objects)
	assert.Len(t, report.Sample, DefaultSampleLimit)
	assert.True(t, report.Truncated)
}

func TestCheckPrefixEmpty(t *testing.T) {
	insp, _ := memInspector(t, "song_data/x.json")

	report, err := insp.CheckPrefix(context.Background(), "s3://udacity-dend/log_data")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceNotFound))
	assert.Zero(t, report.Objects)
}

func TestCheckObject(t *testing.T) {
	insp, _ := memInspector(t, "log_json_path.json")
	ctx := context.Background()

	assert.NoError(t, insp.CheckObject(ctx, "s3://udacity-dend/log_json_path.json"))

	err := insp.CheckObject(ctx, "s3://udacity-dend/missing.json")
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceNotFound))
}

func TestPreflight(t *testing.T) {
	src := catalog.Sources{
		LogData:     "s3://udacity-dend/log_data",
		LogJSONPath: "s3://udacity-dend/log_json_path.json",
		SongData:    "s3://udacity-dend/song_data",
	}

	t.Run("all present", func(t *testing.T) {
		insp, _ := memInspector(t, "log_data/e.json", "song_data/s.json", "log_json_path.json")

		results, err := insp.Preflight(context.Background(), src)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, r := range results {
			assert.NoError(t, r.Err, r.Key)
		}
		assert.Equal(t, 1, results[0].Prefix.Objects)
	})

	t.Run("missing song data", func(t *testing.T) {
		insp, _ := memInspector(t, "log_data/e.json", "log_json_path.json")

		results, err := insp.Preflight(context.Background(), src)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeSourceNotFound))

		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, catalog.KeySongData, appErr.Context["field"])

		assert.NoError(t, results[0].Err)
		assert.Error(t, results[1].Err)
		assert.NoError(t, results[2].Err)
	})

	t.Run("auto json path", func(t *testing.T) {
		insp, _ := memInspector(t, "log_data/e.json", "song_data/s.json")
		auto := src
		auto.LogJSONPath = "auto"

		_, err := insp.Preflight(context.Background(), auto)
		assert.NoError(t, err)
	})
}
