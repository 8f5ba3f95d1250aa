package agent

import (
	"strings"
	"unicode"

	"github.com/nugget/heirloom/internal/prompts"
)

// MaxReplySentences is how many sentences a reply keeps.
const MaxReplySentences = 3

// Shape trims a model reply for chat: it keeps the first three
// sentences and, when a tool ran and none of them asks a question,
// appends the follow-up prompt. A blank reply becomes the fallback text.
func Shape(text string, toolRan bool) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return prompts.EmptyResponseFallback
	}
	if len(sentences) > MaxReplySentences {
		sentences = sentences[:MaxReplySentences]
	}

	asks := false
	for _, s := range sentences {
		if strings.HasSuffix(strings.TrimRight(s, `"')”’`), "?") {
			asks = true
			break
		}
	}
	if toolRan && !asks {
		sentences = append(sentences, prompts.FollowUpQuestion)
	}
	return strings.Join(sentences, " ")
}

// splitSentences breaks text at terminal punctuation followed by
// whitespace, and at line breaks. Closing quotes and brackets stay with
// the sentence they end.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	startIdx := 0

	emit := func(end int) {
		s := strings.TrimSpace(string(runes[startIdx:end]))
		s = strings.TrimLeft(s, "-*• ")
		if s != "" {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
		startIdx = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			emit(i)
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?' || isCloser(runes[j])) {
			j++
		}
		if j == len(runes) || unicode.IsSpace(runes[j]) {
			emit(j)
			i = j - 1
		}
	}
	emit(len(runes))
	return out
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}
