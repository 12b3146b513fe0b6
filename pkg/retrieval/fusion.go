package retrieval

import "sort"

// candidate accumulates both methods' scores for one pattern id before
// fusion. A rank of 0 means the method did not score the candidate.
type candidate struct {
	id           string
	bm25Raw      float64
	bm25Norm     float64
	bm25Rank     int
	semanticRaw  float64
	semanticNorm float64
	semanticRank int
	weighted     float64
}

// fuse combines the two methods' scored lists (each already sorted by raw
// score descending, so position is rank): min-max normalization per
// method over its candidate set, per-method ranks over the full set, then
// the weighted sum. The returned slice is sorted by weighted score
// descending with ties broken by lower bm25 rank, then id — and is NOT
// truncated; ranks must reflect the full candidate set.
func fuse(bm25, semantic []Scored, wBM25, wSemantic float64) []candidate {
	byID := map[string]*candidate{}
	get := func(id string) *candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &candidate{id: id}
		byID[id] = c
		return c
	}

	for i, s := range bm25 {
		c := get(s.ID)
		c.bm25Raw = s.Score
		c.bm25Rank = i + 1
	}
	for i, s := range semantic {
		c := get(s.ID)
		c.semanticRaw = s.Score
		c.semanticRank = i + 1
	}

	normalizeScores(bm25, byID, func(c *candidate, v float64) { c.bm25Norm = v })
	normalizeScores(semantic, byID, func(c *candidate, v float64) { c.semanticNorm = v })

	out := make([]candidate, 0, len(byID))
	for _, c := range byID {
		c.weighted = wBM25*c.bm25Norm + wSemantic*c.semanticNorm
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weighted != out[j].weighted {
			return out[i].weighted > out[j].weighted
		}
		ri, rj := tieRank(out[i].bm25Rank), tieRank(out[j].bm25Rank)
		if ri != rj {
			return ri < rj
		}
		return out[i].id < out[j].id
	})
	return out
}

// tieRank treats "not scored by BM25" as worse than any real rank.
func tieRank(r int) int {
	if r == 0 {
		return 1 << 30
	}
	return r
}

// normalizeScores min-max normalizes one method's scores over the candidates
// that method returned. A single candidate (or a flat list) normalizes to 1.
func normalizeScores(scored []Scored, byID map[string]*candidate, set func(*candidate, float64)) {
	if len(scored) == 0 {
		return
	}
	min, max := scored[0].Score, scored[0].Score
	for _, s := range scored {
		if s.Score < min {
			min = s.Score
		}
		if s.Score > max {
			max = s.Score
		}
	}
	for _, s := range scored {
		var norm float64
		if max == min {
			norm = 1
		} else {
			norm = (s.Score - min) / (max - min)
		}
		set(byID[s.ID], norm)
	}
}
