package ui

import "strconv"

const badgeLimit = 9

// FormatBadge renders an unread count for the sidebar: nothing for zero,
// the number up to nine, "9+" above that.
func FormatBadge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > badgeLimit:
		return strconv.Itoa(badgeLimit) + "+"
	default:
		return strconv.Itoa(n)
	}
}
