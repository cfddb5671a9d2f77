package msgsource

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/mediavault/mediavault/internal/scheduler"
)

var (
	privateLinkRe = regexp.MustCompile(`^https://t\.me/c/(\d+)/(\d+)$`)
	publicLinkRe  = regexp.MustCompile(`^https://t\.me/([A-Za-z0-9_]+)/(\d+)$`)
)

// ParseMessageURL extracts a locator from a t.me message link. Private
// links (t.me/c/<id>/<msg>) are matched before public ones so the "c"
// path segment is never mistaken for a channel name.
func ParseMessageURL(url string) (scheduler.Locator, error) {
	if m := privateLinkRe.FindStringSubmatch(url); m != nil {
		msgID, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return scheduler.Locator{}, fmt.Errorf("parse message id %q: %w", m[2], err)
		}
		return scheduler.Locator{Channel: m[1], MessageID: msgID}, nil
	}
	if m := publicLinkRe.FindStringSubmatch(url); m != nil {
		msgID, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return scheduler.Locator{}, fmt.Errorf("parse message id %q: %w", m[2], err)
		}
		return scheduler.Locator{Channel: m[1], MessageID: msgID}, nil
	}
	return scheduler.Locator{}, fmt.Errorf("not a recognized message link: %s", url)
}
