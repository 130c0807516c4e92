package offer

import "strings"

const UnknownAirline = "Unknown"

// FirstNonEmpty returns the first value that is not blank, in argument order.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ResolveAirlineName picks the marketing carrier name, then the operating
// carrier name, then UnknownAirline.
func ResolveAirlineName(marketing, operating string) string {
	return FirstNonEmpty(marketing, operating, UnknownAirline)
}

// Lookup resolves code through a sparse provider dictionary and falls back to
// the code itself when the entry is missing.
func Lookup(dict map[string]string, code string) string {
	if dict != nil {
		if v := dict[code]; strings.TrimSpace(v) != "" {
			return v
		}
	}
	return code
}

// UniqueAirlines counts distinct marketing carrier codes across offers.
func UniqueAirlines(offers []NormalizedOffer) int {
	seen := map[string]struct{}{}
	for _, o := range offers {
		for _, s := range o.Slices {
			for _, seg := range s.Segments {
				if seg.MarketingAirline.Code == "" {
					continue
				}
				seen[seg.MarketingAirline.Code] = struct{}{}
			}
		}
	}
	return len(seen)
}
