package graft

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Object-referencing path segments follow `{optional-display-name-}{id}`:
// the id is everything after the rightmost '-', or after the rightmost '/'
// when no hyphen is present.

// ExtractID pulls the opaque id token out of a decorated reference. A
// reference without any separator is already a bare token.
func ExtractID(ref string) string {
	if i := strings.LastIndexByte(ref, '-'); i >= 0 {
		return ref[i+1:]
	}
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

var versionTimeRE = regexp.MustCompile(`^\d{4}-\d\d-\d\dT\d\d:\d\d(:\d\d(\.\d+)?)?Z$`)

// time-travel refs look like `{decoration-}{time}-{id}`
var versionRefRE = regexp.MustCompile(`(\d{4}-\d\d-\d\dT\d\d:\d\d(:\d\d(\.\d+)?)?Z)-([^-/]+)$`)

// ParseVersionTime parses a time-travel path segment of the form
// `YYYY-MM-DDTHH:MM[:SS[.fff]]Z`. Omitted seconds and fractional seconds
// default to their maximum (59.999) so the query rounds up to the end of
// the specified window.
func ParseVersionTime(s string) (time.Time, error) {
	m := versionTimeRE.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid version time %q", s)
	}
	full := s
	if m[1] == "" {
		full = strings.TrimSuffix(s, "Z") + ":59.999Z"
	} else if m[2] == "" {
		full = strings.TrimSuffix(s, "Z") + ".999Z"
	}
	t, err := time.Parse(time.RFC3339, full)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid version time %q", s)
	}
	return t.UTC(), nil
}

// SplitVersionRef splits a post reference into its optional time-travel
// component and the id token. A ref without a time component yields a zero
// time and hasTime=false.
func SplitVersionRef(ref string) (t time.Time, id string, hasTime bool, err error) {
	m := versionRefRE.FindStringSubmatch(ref)
	if m == nil {
		return time.Time{}, ExtractID(ref), false, nil
	}
	t, err = ParseVersionTime(m[1])
	if err != nil {
		return time.Time{}, "", false, err
	}
	return t, m[4], true, nil
}
