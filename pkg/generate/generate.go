// Package generate produces the candidate stream for a run: the
// cross-product of buckets × objects × extensions in a fixed,
// bucket-major order, restartable from any offset. It does no
// filtering or deduplication; wordlist hygiene belongs to the loader.
package generate

import "cellenum/pkg/core"

// Generator yields candidates lazily. With no objects it degrades to a
// bucket-existence sweep: one root probe per bucket.
type Generator struct {
	buckets    []string
	objects    []string
	extensions []string
	pos        int
}

func New(buckets, objects, extensions []string) *Generator {
	return &Generator{buckets: buckets, objects: objects, extensions: extensions}
}

// BucketSweep reports whether the generator runs in bucket-existence
// mode (no object wordlist supplied).
func (g *Generator) BucketSweep() bool {
	return len(g.objects) == 0
}

// Len is the total number of candidates:
// |buckets| × |objects| × max(1, |extensions|), or |buckets| alone in
// bucket-sweep mode.
func (g *Generator) Len() int {
	if g.BucketSweep() {
		return len(g.buckets)
	}
	return len(g.buckets) * len(g.objects) * g.extCount()
}

// Seek positions the generator so the next candidate is At(offset).
// Seeking past the end exhausts it.
func (g *Generator) Seek(offset int) {
	if offset < 0 {
		offset = 0
	}
	g.pos = offset
}

// Offset is the index of the next candidate to be produced.
func (g *Generator) Offset() int {
	return g.pos
}

// Next returns the next candidate in order, or ok=false when the
// sequence is exhausted.
func (g *Generator) Next() (core.Candidate, bool) {
	if g.pos >= g.Len() {
		return core.Candidate{}, false
	}
	c := g.At(g.pos)
	g.pos++
	return c, true
}

// At computes the candidate at index i deterministically, independent
// of the generator's cursor. Order: bucket-major, then object, then
// extension.
func (g *Generator) At(i int) core.Candidate {
	if g.BucketSweep() {
		return core.Candidate{Bucket: g.buckets[i]}
	}
	ec := g.extCount()
	perBucket := len(g.objects) * ec
	c := core.Candidate{
		Bucket: g.buckets[i/perBucket],
		Object: g.objects[(i%perBucket)/ec],
	}
	if len(g.extensions) > 0 {
		c.Extension = g.extensions[i%ec]
	}
	return c
}

func (g *Generator) extCount() int {
	if len(g.extensions) == 0 {
		return 1 // bare object name
	}
	return len(g.extensions)
}
