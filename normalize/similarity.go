package normalize

import (
	"regexp"
	"strings"
)

var punctuationRE = regexp.MustCompile(`[^\w\s]`)

// TitleSimilarity scores two titles in [0,1]: case-insensitive,
// punctuation-stripped, then the classic matching-blocks ratio
// (2*matched / total length). Empty input scores zero.
func TitleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return matchRatio(
		[]rune(punctuationRE.ReplaceAllString(strings.ToLower(a), "")),
		[]rune(punctuationRE.ReplaceAllString(strings.ToLower(b), "")),
	)
}

type matchSpan struct {
	alo, ahi, blo, bhi int
}

// matchRatio sums the longest matching block in each region, splitting
// recursively around it, and scores 2*matched over combined length.
func matchRatio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}

	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matched := 0
	stack := []matchSpan{{0, len(a), 0, len(b)}}
	for len(stack) > 0 {
		region := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i, j, size := longestMatch(a, b2j, region)
		if size == 0 {
			continue
		}
		matched += size
		stack = append(stack,
			matchSpan{region.alo, i, region.blo, j},
			matchSpan{i + size, region.ahi, j + size, region.bhi},
		)
	}

	return 2 * float64(matched) / float64(total)
}

// longestMatch finds the longest run of equal runes within the region,
// preferring the earliest on ties.
func longestMatch(a []rune, b2j map[rune][]int, region matchSpan) (besti, bestj, bestsize int) {
	besti, bestj = region.alo, region.blo
	j2len := map[int]int{}
	for i := region.alo; i < region.ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < region.blo {
				continue
			}
			if j >= region.bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestsize
}
