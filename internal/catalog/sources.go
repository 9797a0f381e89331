package catalog

import (
	"regexp"
	"strings"

	"starload/pkg/errors"
)

// DefaultRegion is the bucket region used when none is configured.
const DefaultRegion = "us-west-2"

// Configuration keys, as SECTION.KEY.
const (
	KeyLogData     = "S3.LOG_DATA"
	KeyLogJSONPath = "S3.LOG_JSONPATH"
	KeySongData    = "S3.SONG_DATA"
	KeyIAMRoleARN  = "IAM_ROLE.ARN"
	KeyRegion      = "S3.REGION"
)

// Sources holds the object-storage locations and access role that the bulk
// loads are rendered with.
type Sources struct {
	LogData     string
	LogJSONPath string
	SongData    string
	IAMRoleARN  string
	Region      string
}

type setting struct {
	key   string
	value string
}

var regionPattern = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-[0-9]$`)

// unquote strips one pair of surrounding single quotes, the form dwh.cfg files
// conventionally use for locations.
func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	return v
}

// normalize returns a copy with quotes stripped and the default region applied,
// or the first configuration error found.
func (s Sources) normalize() (Sources, error) {
	out := Sources{
		LogData:     unquote(s.LogData),
		LogJSONPath: unquote(s.LogJSONPath),
		SongData:    unquote(s.SongData),
		IAMRoleARN:  unquote(s.IAMRoleARN),
		Region:      unquote(s.Region),
	}
	if out.Region == "" {
		out.Region = DefaultRegion
	}

	required := []setting{
		{KeyLogData, out.LogData},
		{KeyLogJSONPath, out.LogJSONPath},
		{KeySongData, out.SongData},
		{KeyIAMRoleARN, out.IAMRoleARN},
	}
	for _, f := range required {
		if f.value == "" {
			return Sources{}, errors.MissingConfigError(f.key)
		}
	}

	for _, f := range append(required, setting{KeyRegion, out.Region}) {
		if err := checkLiteral(f.key, f.value); err != nil {
			return Sources{}, err
		}
	}

	if !regionPattern.MatchString(out.Region) {
		return Sources{}, errors.ConfigError("Region is not a valid AWS region name", KeyRegion).
			WithContext("value", out.Region)
	}

	return out, nil
}

// checkLiteral rejects characters that would terminate or escape a SQL string
// literal. Bulk-load commands accept no bind parameters on either warehouse, so
// the values are embedded as literals and must be safe verbatim.
func checkLiteral(key, value string) error {
	if i := strings.IndexAny(value, "';\\\r\n\x00"); i >= 0 {
		return errors.ConfigError("Configuration value contains a character that is not allowed in a SQL literal", key).
			WithContext("position", i).
			WithSuggestions("Remove quotes, semicolons, backslashes and line breaks from the value")
	}
	return nil
}

func quote(v string) string {
	return "'" + v + "'"
}
