package logtypes

import (
	"sort"
)

// Severity levels for log types. Higher is more severe.
const (
	LevelInfo     = 1
	LevelWarning  = 2
	LevelError    = 3
	LevelCritical = 4
)

type LogType struct {
	Name        string
	Level       int
	Description string
}

// table maps symbolic log-type names to severity levels. It is static: the
// shipper only uses it to expand a minimum-severity selector into type names.
var table = map[string]LogType{
	"login_success":      {Name: "login_success", Level: LevelInfo, Description: "Successful login"},
	"logout_success":     {Name: "logout_success", Level: LevelInfo, Description: "Successful logout"},
	"signup_success":     {Name: "signup_success", Level: LevelInfo, Description: "Successful signup"},
	"token_issued":       {Name: "token_issued", Level: LevelInfo, Description: "Access token issued"},
	"password_changed":   {Name: "password_changed", Level: LevelInfo, Description: "Password changed"},
	"login_warning":      {Name: "login_warning", Level: LevelWarning, Description: "Login with warnings"},
	"rate_limit_warning": {Name: "rate_limit_warning", Level: LevelWarning, Description: "Rate limit approached"},
	"config_warning":     {Name: "config_warning", Level: LevelWarning, Description: "Deprecated configuration in use"},
	"login_failure":      {Name: "login_failure", Level: LevelError, Description: "Failed login"},
	"signup_failure":     {Name: "signup_failure", Level: LevelError, Description: "Failed signup"},
	"token_failure":      {Name: "token_failure", Level: LevelError, Description: "Token exchange failed"},
	"payload_error":      {Name: "payload_error", Level: LevelError, Description: "Malformed request payload"},
	"rate_limit_hit":     {Name: "rate_limit_hit", Level: LevelCritical, Description: "Rate limit exceeded"},
	"system_error":       {Name: "system_error", Level: LevelCritical, Description: "Internal system error"},
	"integration_error":  {Name: "integration_error", Level: LevelCritical, Description: "Downstream integration error"},
}

// Get returns the log type for a symbolic name.
func Get(name string) (LogType, bool) {
	lt, ok := table[name]
	return lt, ok
}

// All returns the full table sorted by level then name.
func All() []LogType {
	out := make([]LogType, 0, len(table))
	for _, lt := range table {
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Expand computes the effective type filter: the union of the explicit names
// and every table entry whose level is at or above minLevel (0 disables the
// level selector). The result is deduplicated and sorted; an empty result
// means no filtering.
func Expand(explicit []string, minLevel int) []string {
	seen := make(map[string]struct{})
	for _, name := range explicit {
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}
	if minLevel > 0 {
		for name, lt := range table {
			if lt.Level >= minLevel {
				seen[name] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
