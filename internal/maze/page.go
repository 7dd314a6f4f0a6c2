package maze

import (
	"fmt"
	"hash/fnv"
	"net/http"
)

const linksPerPage = 8

// WritePage renders the synthetic maze page for path. Pages are
// deterministic: the same path always yields the same outgoing links, and
// every link points deeper into the namespace, so the structure is unbounded
// without storing anything.
func WritePage(w http.ResponseWriter, path string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Robots-Tag", "noindex, nofollow")
	w.WriteHeader(http.StatusOK)

	seed := fnv.New64a()
	seed.Write([]byte(path))
	state := seed.Sum64()

	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>Archive %08x</title></head><body>\n", uint32(state))
	fmt.Fprintf(w, "<h1>Document index</h1>\n<ul>\n")
	for i := 0; i < linksPerPage; i++ {
		state = next(state)
		fmt.Fprintf(w, "<li><a href=\"%s%016x\">Section %d.%d</a></li>\n",
			PathPrefix, state, uint32(state)%97, i+1)
	}
	fmt.Fprintf(w, "</ul>\n</body></html>\n")
}

// next advances the link id sequence (splitmix64 step).
func next(state uint64) uint64 {
	state += 0x9e3779b97f4a7c15
	z := state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
