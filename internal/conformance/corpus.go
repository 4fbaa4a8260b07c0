package conformance

import (
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/propgroups/internal/propgroup"
)

// DefaultCorpus returns the keys used to check the default group set.
//
// It covers reserved-prefix keys, every ignored custom key and near misses
// of them, feature flag keys, LIKE metacharacters and plain custom keys.
func DefaultCorpus() []string {
	keys := []string{
		// reserved prefix
		"$",
		"$browser",
		"$current_url",
		"$set",
		"$groups",
		"$feature",
		"$feature_flag",
		"$feature_flag_response",
		"$active_feature_flags",
		"$$double",
		// feature flags
		"$feature/",
		"$feature/my-flag",
		"$feature/beta_%",
		"$feature/with space",
		"$feature/ключ",
		"$FEATURE/upper",
		// not quite feature flags
		"feature/my-flag",
		" $feature/leading-space",
		"$featurex/y",
		// custom
		"",
		" ",
		"purchase_amount",
		"plan",
		"Plan",
		"%",
		"_",
		"100%",
		"a_b",
		"it's",
		`back\slash`,
		"emoji_🎉",
		"ключ",
		"café",
		"$feature/café",
		"utm",
		"utm_",
		"utm_source_extra",
		"UTM_SOURCE",
		" token",
		"token ",
		"distinct_id2",
		"x$",
	}

	// every ignored key must be excluded exactly, not by prefix
	keys = append(keys, propgroup.IgnoredCustomProperties()...)
	for _, k := range propgroup.IgnoredCustomProperties() {
		keys = append(keys, "$"+k, k+"_", "_"+k)
	}

	// ClickHouse compares bytes, so the decomposed spelling of a key is a
	// different key that both sides must classify on its own.
	for _, k := range keys {
		if norm.NFD.IsNormalString(k) {
			continue
		}
		keys = append(keys, norm.NFD.String(k))
	}

	slices.Sort(keys)
	return slices.Compact(keys)
}
