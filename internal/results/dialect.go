package results

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dialect struct {
	name       string
	driver     string
	schema     string
	maxConns   int
	timeColumn func(time.Time) any
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: `
	CREATE TABLE IF NOT EXISTS trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pair_id TEXT NOT NULL,
		trial_index INTEGER NOT NULL,
		director_id TEXT NOT NULL,
		matcher_id TEXT NOT NULL,
		director_external_id TEXT NOT NULL DEFAULT '',
		matcher_external_id TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL,
		label TEXT NOT NULL,
		guess TEXT NOT NULL,
		score INTEGER NOT NULL,
		completed_at TEXT NOT NULL,
		UNIQUE (pair_id, trial_index)
	);

	CREATE INDEX IF NOT EXISTS idx_trials_completed ON trials(completed_at);
	`,
	maxConns: 1,
	timeColumn: func(t time.Time) any {
		return t.UTC().Format(time.RFC3339Nano)
	},
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS trials (
		id BIGSERIAL PRIMARY KEY,
		pair_id VARCHAR(64) NOT NULL,
		trial_index INTEGER NOT NULL,
		director_id VARCHAR(64) NOT NULL,
		matcher_id VARCHAR(64) NOT NULL,
		director_external_id VARCHAR(256) NOT NULL DEFAULT '',
		matcher_external_id VARCHAR(256) NOT NULL DEFAULT '',
		target VARCHAR(256) NOT NULL,
		label TEXT NOT NULL,
		guess VARCHAR(256) NOT NULL,
		score SMALLINT NOT NULL,
		completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (pair_id, trial_index)
	);

	CREATE INDEX IF NOT EXISTS idx_trials_completed ON trials(completed_at);
	`,
	maxConns: 10,
	timeColumn: func(t time.Time) any {
		return t.UTC()
	},
}

// rebind rewrites ? placeholders into the dialect's form.
func (d dialect) rebind(query string) string {
	if d.name != "postgres" {
		return query
	}
	var builder strings.Builder
	index := 0
	for _, r := range query {
		if r == '?' {
			index++
			builder.WriteString("$" + strconv.Itoa(index))
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func scanTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTimeText(v)
	case []byte:
		return parseTimeText(string(v))
	default:
		return time.Time{}, fmt.Errorf("unexpected completed_at type %T", value)
	}
}

func parseTimeText(text string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable completed_at %q", text)
}

// parseDSN maps a results DSN onto a dialect and a driver data source.
// Accepted forms are sqlite://path and postgres:// or postgresql:// URLs.
func parseDSN(dsn string) (dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return dialect{}, "", fmt.Errorf("%w: sqlite dsn without path", ErrUnsupportedDSN)
		}
		if !strings.Contains(path, "?") {
			path += "?_pragma=busy_timeout(5000)"
		}
		return sqliteDialect, path, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgresDialect, dsn, nil
	default:
		return dialect{}, "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
	}
}

// ValidateDSN reports whether Open would accept dsn, without connecting.
func ValidateDSN(dsn string) error {
	_, _, err := parseDSN(dsn)
	return err
}

func redact(dsn string) string {
	scheme, _, found := strings.Cut(dsn, "://")
	if !found {
		return dsn
	}
	return scheme + "://..."
}
