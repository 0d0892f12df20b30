// SPDX-License-Identifier: MIT
// Copyright (c) 2026 streambox authors

package streambox

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// EntryFilter is a compiled include/exclude rule set, consulted once per
// tar entry or multipart part right after its header is parsed and
// before its payload stream is constructed. An excluded entry is
// skipped through the ordinary advance-cancels-current-entry path, so
// it never causes a payload reader to be allocated.
type EntryFilter struct {
	matcher *pathrules.Matcher
}

// NewEntryFilter compiles rules into an EntryFilter. opts.DefaultAction
// controls the outcome for paths matching no rule; an unset
// DefaultAction defaults (via pathrules) to exclude.
func NewEntryFilter(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*EntryFilter, error) {
	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile entry filter rules: %v", ErrBadPrecondition, err)
	}

	return &EntryFilter{matcher: matcher}, nil
}

// Include reports whether name passes the filter. A nil *EntryFilter
// (the default, unset case) includes everything.
func (f *EntryFilter) Include(name string) bool {
	if f == nil || f.matcher == nil {
		return true
	}

	return f.matcher.Included(name, false)
}
