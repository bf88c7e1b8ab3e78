// Package search ranks bag-of-words scores, votes for landmarks among the
// best ranked images and caches query results.
package search

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
)

// Rank returns a copy of scores ordered best first: ascending distance,
// ties broken by ascending image id
func Rank(scores []bow.Score) []bow.Score {
	ranked := append([]bow.Score(nil), scores...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].ImageID < ranked[j].ImageID
	})
	return ranked
}

// TopN returns at most n leading entries of ranked
func TopN(ranked []bow.Score, n int) []bow.Score {
	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// Vote counts the landmarks of the first top ranked images and returns the
// most voted landmark with its votes. Ties go to the lowest landmark id.
// Images without a landmark (or with a negative one) do not vote; when
// nothing votes the result is (-1, 0).
func Vote(ranked []bow.Score, landmarks map[int]int, top int) (landmark, votes int) {
	counts := make(map[int]int)
	for _, s := range TopN(ranked, top) {
		ld, ok := landmarks[s.ImageID]
		if !ok || ld < 0 {
			continue
		}
		counts[ld]++
	}

	landmark = -1
	for ld, n := range counts {
		if n > votes || (n == votes && ld < landmark) {
			landmark, votes = ld, n
		}
	}
	return landmark, votes
}
