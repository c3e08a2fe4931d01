package feed

import (
	"time"
)

// Item is one candidate article extracted from a source. It lives only for
// the duration of a scan; persisted records are built from it after
// classification.
type Item struct {
	Title       string
	Link        string
	Description string
	PubDate     time.Time
	Author      string
	Source      string
	FullContent string
}
