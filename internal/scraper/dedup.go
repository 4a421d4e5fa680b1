package scraper

import "sync"

// dedupSet tracks item URLs already dispatched within one run, so an advert
// appearing on two listing pages is fetched at most once. It never consults
// the store; storage-level idempotence is the repository's job.
type dedupSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{urls: make(map[string]struct{})}
}

func (d *dedupSet) Seen(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.urls[url]
	return ok
}

func (d *dedupSet) Mark(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls[url] = struct{}{}
}
