package enrichment

import (
	"fmt"
	"path"
	"regexp"
	"strconv"

	"hnenricher/config"
)

var artifactPattern = regexp.MustCompile(`^input-(\d+)\.jsonl(\.out)?$`)

// InputArtifactName returns the object name of the input artifact for ts.
func InputArtifactName(ts int64) string {
	return fmt.Sprintf(config.InputArtifactFormat, ts)
}

// artifactTS parses the timestamp from an artifact key's base name. Output
// artifacts carry the ".out" suffix added by the batch service.
func artifactTS(key string) (ts int64, output bool, ok bool) {
	m := artifactPattern.FindStringSubmatch(path.Base(key))
	if m == nil {
		return 0, false, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false, false
	}
	return ts, m[2] != "", true
}
