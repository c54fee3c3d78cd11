package tenant

import "sync"

// resetProcessScoping lets tests exercise the once-per-process flag read.
func resetProcessScoping() {
	processOnce = sync.Once{}
	processScoping = Scoping{}
}
