package game

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Verdict 猜词判定结果
type Verdict int

const (
	Miss Verdict = iota
	Close
	Exact
)

func (v Verdict) String() string {
	switch v {
	case Exact:
		return "exact"
	case Close:
		return "close"
	default:
		return "miss"
	}
}

// 接近判定阈值
const (
	closeMaxDistance   = 2
	closeMinSimilarity = 0.6
)

// Classify 判定猜词：忽略大小写和首尾空白完全相等为 Exact，
// 编辑距离不超过2或相似度超过0.6为 Close，其余为 Miss
func Classify(text, target string) Verdict {
	guess := strings.ToLower(strings.TrimSpace(text))
	word := strings.ToLower(strings.TrimSpace(target))
	if guess == "" || word == "" {
		return Miss
	}
	if guess == word {
		return Exact
	}

	d := levenshtein.ComputeDistance(guess, word)
	if d <= closeMaxDistance {
		return Close
	}

	maxLen := utf8.RuneCountInString(guess)
	if n := utf8.RuneCountInString(word); n > maxLen {
		maxLen = n
	}
	if 1-float64(d)/float64(maxLen) > closeMinSimilarity {
		return Close
	}
	return Miss
}
