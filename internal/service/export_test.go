package service

import "time"

// SetDebounce shortens the file-change debounce for tests.
func (r *Refresher) SetDebounce(d time.Duration) {
	r.debounce = d
}
