package propgroup

import (
	"slices"
	"strings"
)

// Default group names.
const (
	GroupCustom       = "custom"
	GroupFeatureFlags = "feature_flags"
)

// ignoredCustomProperties are excluded from the custom group. They are sent
// by most teams on a large share of events and are optimized separately.
//
// This list is interpolated into DDL and must stay a constant set.
var ignoredCustomProperties = []string{
	// token and distinct_id arrive with roughly half of all events
	"token",
	"distinct_id",
	// campaign attribution, defined by external parties
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_content",
	"utm_term",
	"gclid",      // google ads
	"gad_source", // google ads
	"gclsrc",     // google ads 360
	"dclid",      // google display ads
	"gbraid",     // google ads, web to app
	"wbraid",     // google ads, app to web
	"fbclid",     // facebook
	"msclkid",    // microsoft
	"twclid",     // twitter
	"li_fat_id",  // linkedin
	"mc_cid",     // mailchimp campaign id
	"igshid",     // instagram
	"ttclid",     // tiktok
	"rdt_cid",    // reddit
}

// IgnoredCustomProperties returns a copy of the keys excluded from the
// custom group.
func IgnoredCustomProperties() []string {
	return slices.Clone(ignoredCustomProperties)
}

// ReservedPrefix marks properties set by the platform itself.
const ReservedPrefix = "$"

// FeatureFlagPrefix namespaces feature flag properties.
const FeatureFlagPrefix = "$feature/"

// CustomGroup matches user-defined properties: anything without the reserved
// prefix that is not in IgnoredCustomProperties().
func CustomGroup() *Definition {
	quoted := make([]string, len(ignoredCustomProperties))
	for i, name := range ignoredCustomProperties {
		quoted[i] = "'" + name + "'"
	}
	expression := "key NOT LIKE '$%' AND key NOT IN (" + strings.Join(quoted, ", ") + ")"

	return MustDefinition(GroupCustom, expression, func(key string) bool {
		return !strings.HasPrefix(key, ReservedPrefix) && !slices.Contains(ignoredCustomProperties, key)
	})
}

// FeatureFlagsGroup matches feature flag properties.
func FeatureFlagsGroup() *Definition {
	return MustDefinition(GroupFeatureFlags, "key like '$feature/%'", func(key string) bool {
		return strings.HasPrefix(key, FeatureFlagPrefix)
	})
}

// NewEventsRegistry builds the registry for an events table's properties
// column with the default groups, custom first.
func NewEventsRegistry(target Target) (*Registry, error) {
	r, err := NewRegistry(target)
	if err != nil {
		return nil, err
	}
	for _, def := range []*Definition{CustomGroup(), FeatureFlagsGroup()} {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}
