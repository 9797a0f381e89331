// Package storage checks that the bulk-load sources exist in object storage
// before the warehouse is asked to read them.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
	"gocloud.dev/gcerrors"

	"starload/internal/catalog"
	"starload/internal/logging"
	"starload/pkg/errors"
)

// DefaultSampleLimit caps how many keys a prefix check lists.
const DefaultSampleLimit = 5

// Location is an object-storage URL split into bucket and key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// ParseLocation parses a location such as s3://udacity-dend/log_data.
func ParseLocation(raw string) (Location, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "'")
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Location{}, errors.New(errors.ErrCodeConfigInvalid, "Source location is not a bucket URL").
			WithContext("location", raw).
			WithSuggestions("Use the form s3://bucket/prefix")
	}
	return Location{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Key:    strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// Opener opens the bucket a location lives in.
type Opener func(ctx context.Context, loc Location) (*blob.Bucket, error)

// Inspector lists and stats source objects. Buckets stay open until Close.
type Inspector struct {
	open        Opener
	sampleLimit int
	log         *logrus.Entry

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
}

// NewInspector returns an inspector that opens buckets through the gocloud
// URL openers, passing region to S3.
func NewInspector(region string) *Inspector {
	return NewInspectorWithOpener(func(ctx context.Context, loc Location) (*blob.Bucket, error) {
		bucketURL := fmt.Sprintf("%s://%s", loc.Scheme, loc.Bucket)
		if loc.Scheme == "s3" && region != "" {
			params := url.Values{}
			params.Set("region", region)
			bucketURL = bucketURL + "?" + params.Encode()
		}
		return blob.OpenBucket(ctx, bucketURL)
	})
}

// NewInspectorWithOpener returns an inspector using open to reach buckets.
func NewInspectorWithOpener(open Opener) *Inspector {
	return &Inspector{
		open:        open,
		sampleLimit: DefaultSampleLimit,
		log:         logging.For("storage"),
		buckets:     make(map[string]*blob.Bucket),
	}
}

func (i *Inspector) bucket(ctx context.Context, loc Location) (*blob.Bucket, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	name := loc.Scheme + "://" + loc.Bucket
	if b, ok := i.buckets[name]; ok {
		return b, nil
	}
	b, err := i.open(ctx, loc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageUnavailable, "Failed to open bucket").
			WithContext("bucket", name).
			AsRecoverable()
	}
	i.buckets[name] = b
	return b, nil
}

// Close releases every bucket the inspector opened.
func (i *Inspector) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var firstErr error
	for name, b := range i.buckets {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close bucket %s: %w", name, err)
		}
		delete(i.buckets, name)
	}
	return firstErr
}

// PrefixReport describes the objects found under a prefix.
type PrefixReport struct {
	Location  string   `json:"location"`
	Objects   int      `json:"objects"`
	Sample    []string `json:"sample"`
	Truncated bool     `json:"truncated"`
}

// CheckPrefix confirms at least one object exists under the location. Objects
// is capped at the sample limit; Truncated reports that more exist.
func (i *Inspector) CheckPrefix(ctx context.Context, location string) (*PrefixReport, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	b, err := i.bucket(ctx, loc)
	if err != nil {
		return nil, err
	}

	report := &PrefixReport{Location: loc.String()}
	iter := b.List(&blob.ListOptions{Prefix: loc.Key})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, storageError(err, loc)
		}
		if obj.IsDir {
			continue
		}
		if report.Objects == i.sampleLimit {
			report.Truncated = true
			break
		}
		report.Objects++
		report.Sample = append(report.Sample, obj.Key)
	}

	if report.Objects == 0 {
		return report, errors.New(errors.ErrCodeSourceNotFound, "No objects found under source prefix").
			WithContext("location", loc.String()).
			WithSuggestions(
				"Check the bucket and prefix in dwh.cfg",
				"Check the region in S3.REGION",
			)
	}

	i.log.WithFields(logrus.Fields{
		"location":  loc.String(),
		"objects":   report.Objects,
		"truncated": report.Truncated,
	}).Debug("prefix checked")
	return report, nil
}

// CheckObject confirms a single object exists.
func (i *Inspector) CheckObject(ctx context.Context, location string) error {
	loc, err := ParseLocation(location)
	if err != nil {
		return err
	}
	b, err := i.bucket(ctx, loc)
	if err != nil {
		return err
	}

	ok, err := b.Exists(ctx, loc.Key)
	if err != nil {
		return storageError(err, loc)
	}
	if !ok {
		return errors.New(errors.ErrCodeSourceNotFound, "Source object does not exist").
			WithContext("location", loc.String()).
			WithSuggestions("Check S3.LOG_JSONPATH points at the JSONPaths file")
	}
	return nil
}

func storageError(err error, loc Location) error {
	code := errors.ErrCodeStorageUnavailable
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		code = errors.ErrCodeSourceNotFound
	case gcerrors.PermissionDenied:
		return errors.Wrap(err, errors.ErrCodeStorageUnavailable, "Access to source denied").
			WithContext("location", loc.String()).
			WithSuggestions("Preflight uses local AWS credentials; check they can read the bucket")
	}
	return errors.Wrap(err, code, "Failed to inspect source").
		WithContext("location", loc.String())
}

// Result is the outcome of checking one configured source.
type Result struct {
	Key      string        `json:"key"`
	Location string        `json:"location"`
	Prefix   *PrefixReport `json:"prefix,omitempty"`
	Err      error         `json:"-"`
}

// Preflight checks the two data prefixes and the JSONPaths file. It checks
// every source and returns the first failure.
func (i *Inspector) Preflight(ctx context.Context, src catalog.Sources) ([]Result, error) {
	results := []Result{
		{Key: catalog.KeyLogData, Location: src.LogData},
		{Key: catalog.KeySongData, Location: src.SongData},
		{Key: catalog.KeyLogJSONPath, Location: src.LogJSONPath},
	}

	var firstErr error
	for idx := range results {
		r := &results[idx]
		switch r.Key {
		case catalog.KeyLogJSONPath:
			// 'auto' asks the warehouse to map fields by name; there is no file.
			if strings.EqualFold(strings.Trim(r.Location, "' "), "auto") {
				continue
			}
			r.Err = i.CheckObject(ctx, r.Location)
		default:
			r.Prefix, r.Err = i.CheckPrefix(ctx, r.Location)
		}
		if r.Err != nil {
			if ae, ok := r.Err.(*errors.AppError); ok {
				_ = ae.WithContext("field", r.Key)
			}
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}
	return results, firstErr
}
