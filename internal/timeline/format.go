package timeline

import (
	"fmt"
	"time"
)

const absoluteLayout = "01/02/2006, 15:04:05"

// FormatOffset renders seconds since scene start as HH:MM:SS. Hours are not wrapped at 24.
func FormatOffset(offset int64) string {
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", offset/3600, (offset%3600)/60, offset%60)
}

// FormatAbsolute renders a Unix timestamp as MM/DD/YYYY, HH:MM:SS in loc.
func FormatAbsolute(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(ts, 0).In(loc).Format(absoluteLayout)
}

// FormatPosition combines both as "HH:MM:SS [MM/DD/YYYY, HH:MM:SS]".
func FormatPosition(offset, absolute int64, loc *time.Location) string {
	return fmt.Sprintf("%s [%s]", FormatOffset(offset), FormatAbsolute(absolute, loc))
}
