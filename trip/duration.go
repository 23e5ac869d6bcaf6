package trip

import (
	"fmt"
	"time"
)

// FormatElapsed renders d as HH:MM:SS, truncated to whole seconds. Hours are
// not wrapped at 24.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
