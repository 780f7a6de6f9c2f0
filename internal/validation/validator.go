package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/logtypes"
)

// identifier validation: allow simple SQL identifiers only (prevents injection via table names).
var (
	identRe       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	reservedWords = map[string]struct{}{
		"add": {}, "all": {}, "alter": {}, "and": {}, "any": {}, "as": {},
		"asc": {}, "between": {}, "by": {}, "case": {}, "check": {},
		"column": {}, "constraint": {}, "create": {}, "cross": {}, "current_date": {},
		"current_time": {}, "current_timestamp": {}, "database": {}, "default": {}, "delete": {},
		"desc": {}, "distinct": {}, "do": {}, "drop": {}, "else": {},
		"end": {}, "except": {}, "exists": {}, "false": {}, "for": {},
		"foreign": {}, "from": {}, "full": {}, "grant": {}, "group": {},
		"having": {}, "in": {}, "index": {}, "inner": {}, "insert": {},
		"intersect": {}, "into": {}, "is": {}, "join": {}, "key": {},
		"left": {}, "like": {}, "limit": {}, "natural": {}, "not": {},
		"null": {}, "offset": {}, "on": {}, "or": {}, "order": {},
		"outer": {}, "primary": {}, "references": {}, "returning": {}, "revoke": {},
		"right": {}, "schema": {}, "select": {}, "set": {}, "table": {},
		"then": {}, "to": {}, "true": {}, "truncate": {}, "union": {},
		"unique": {}, "update": {}, "user": {}, "using": {}, "values": {},
		"view": {}, "when": {}, "where": {}, "with": {},
	}
)

func IsValidIdentifier(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if !identRe.MatchString(s) {
		return false
	}
	if _, ok := reservedWords[strings.ToLower(s)]; ok {
		return false
	}
	return true
}

// ValidateProfile checks a source or sink profile before it is used.
func ValidateProfile(p *domain.Profile) error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	if p.ID == "" && p.Name == "" {
		return fmt.Errorf("profile must have an id or name")
	}
	switch p.Kind {
	case domain.SourceKindHTTP:
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("http source %q: url is required", p.ID)
		}
	case domain.SourceKindFake:
	case domain.SinkKindWriter:
	case domain.SinkKindElasticsearch:
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("elasticsearch sink %q: url is required", p.ID)
		}
	case domain.SinkKindPostgres:
		if strings.TrimSpace(p.DSN) == "" {
			return fmt.Errorf("postgres sink %q: dsn is required", p.ID)
		}
		if p.Table != "" && !IsValidIdentifier(p.Table) {
			return fmt.Errorf("postgres sink %q: invalid table name %q", p.ID, p.Table)
		}
	default:
		return fmt.Errorf("profile %q: unknown kind %q", p.ID, p.Kind)
	}
	return nil
}

// ValidateShipRequest rejects bad run arguments before the shipper starts.
func ValidateShipRequest(req *domain.ShipRequest) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	if req.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}
	if req.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if req.MaxRunTimeSeconds < 0 {
		return fmt.Errorf("max_run_time_seconds must not be negative")
	}
	if req.LogLevel < 0 || req.LogLevel > logtypes.LevelCritical {
		return fmt.Errorf("log_level must be between 0 and %d", logtypes.LevelCritical)
	}
	for _, name := range req.LogTypes {
		if _, ok := logtypes.Get(name); !ok {
			return fmt.Errorf("unknown log type: %s", name)
		}
	}
	return nil
}
