package vocab

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// wordSplit matches either a single punctuation character or a run of
// non-punctuation characters.
var wordSplit = regexp2.MustCompile(`[.,!?"':;)(]|[^.,!?"':;)(]+`, regexp2.Unicode|regexp2.RE2)

// Tokenize splits text on whitespace and then splits every fragment around
// punctuation, keeping the punctuation as separate tokens.
func Tokenize(s string) []string {
	var words []string
	for _, fragment := range strings.Fields(s) {
		for m, _ := wordSplit.FindStringMatch(fragment); m != nil; m, _ = wordSplit.FindNextMatch(m) {
			if w := m.String(); w != "" {
				words = append(words, w)
			}
		}
	}

	return words
}
