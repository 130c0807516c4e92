package normalize

import (
	"fmt"
	"regexp"
	"strconv"
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:\d+(?:\.\d+)?S)?)?$`)

// HumanizeDuration renders an ISO-8601 duration such as PT5H30M as "5h 30m".
// Both parts are always present once the string parses, days fold into
// hours, and anything unparseable is returned unchanged.
func HumanizeDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil || iso == "P" || iso == "PT" {
		return iso
	}
	days := atoi(m[1])
	hours := atoi(m[2])
	minutes := atoi(m[3])
	return fmt.Sprintf("%dh %dm", days*24+hours, minutes)
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
