package compose

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"herald/internal/queue"
)

// SplitOptions controls SplitThread.
type SplitOptions struct {
	// Limit is the per-part budget in code points; zero means queue.TextLimit.
	Limit int
	// Number appends " i/N" to each part when the text needs more than one.
	Number bool
}

var sentenceEnd = regexp.MustCompile(`[.!?…]+["')\]]*\s+`)

// SplitThread breaks text into parts that each fit the limit, preferring
// sentence boundaries, then word boundaries. Text that already fits is
// returned as a single part without numbering.
func SplitThread(text string, opts SplitOptions) []string {
	limit := opts.Limit
	if limit <= 0 {
		limit = queue.TextLimit
	}
	text = strings.TrimSpace(queue.NormalizeText(text))
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	if !opts.Number {
		return pack(sentences(text), limit)
	}

	// The counter suffix shrinks the budget; grow the reservation until the
	// part count stops changing the suffix width.
	reserve := len(" 9/9")
	for {
		parts := pack(sentences(text), limit-reserve)
		suffix := len(fmt.Sprintf(" %d/%d", len(parts), len(parts)))
		if suffix <= reserve {
			for i := range parts {
				parts[i] = fmt.Sprintf("%s %d/%d", parts[i], i+1, len(parts))
			}
			return parts
		}
		reserve = suffix
	}
}

func sentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, strings.TrimSpace(text[last:loc[1]]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// pack greedily joins pieces with single spaces into parts of at most limit
// code points, breaking oversized pieces on words and oversized words on
// code points.
func pack(pieces []string, limit int) []string {
	var (
		parts   []string
		current string
	)
	flush := func() {
		if current != "" {
			parts = append(parts, current)
			current = ""
		}
	}
	add := func(piece string) bool {
		if current == "" {
			if utf8.RuneCountInString(piece) <= limit {
				current = piece
				return true
			}
			return false
		}
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(piece) <= limit {
			current += " " + piece
			return true
		}
		return false
	}

	for _, piece := range pieces {
		if add(piece) {
			continue
		}
		flush()
		if add(piece) {
			continue
		}
		for _, word := range strings.Fields(piece) {
			if add(word) {
				continue
			}
			flush()
			if add(word) {
				continue
			}
			runes := []rune(word)
			for len(runes) > limit {
				parts = append(parts, string(runes[:limit]))
				runes = runes[limit:]
			}
			current = string(runes)
		}
	}
	flush()
	return parts
}
