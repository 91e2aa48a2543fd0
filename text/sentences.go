// Package text has helpers operating on generated prose: sentence aware
// excerpts, truncation and word counting.
package text

import (
	"iter"
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"go.uber.org/zap"
)

type Splitter struct {
	*sentences.DefaultSentenceTokenizer
}

// NewSplitter returns english sentence splitter. When tokenizer cannot be
// initialized nil is returned, which is a valid splitter treating whole input
// as a single sentence.
func NewSplitter(log *zap.Logger) *Splitter {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		log.Warn("Unable to load sentences tokenizer data, turning off sentence splitting", zap.Error(err))
		return nil
	}
	return &Splitter{tokenizer}
}

// Sentences returns an iterator over sentences. Trailing white space of a
// sentence stays with it, so concatenation of all sentences is the input.
func (s *Splitter) Sentences(in string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if s == nil {
			yield(in)
			return
		}

		tokens := s.Tokenize(in)
		for i := 0; i < len(tokens)-1; i++ {
			text := tokens[i].Text

			// tokenizer attaches leading spaces to the next sentence, move them back
			next := tokens[i+1].Text
			for idx, sym := range next {
				if !unicode.IsSpace(sym) {
					text = text + next[0:idx]
					tokens[i+1].Text = next[idx:]
					break
				}
			}
			if !yield(text) {
				return
			}
		}
		if len(tokens) > 0 {
			yield(tokens[len(tokens)-1].Text)
		}
	}
}

// Excerpt returns at most limit characters from the beginning of in, cut at
// sentence boundary when possible. Sentence boundary is only used when it
// keeps at least half of the limit, otherwise overflowing sentence is cut to
// fill the rest (markdown lists without punctuation come out as one long
// sentence).
func (s *Splitter) Excerpt(in string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len([]rune(in)) <= limit {
		return in
	}

	var (
		sb    strings.Builder
		count int
	)
	for sentence := range s.Sentences(in) {
		n := len([]rune(sentence))
		if count+n > limit {
			if count < limit/2 {
				sb.WriteString(Truncate(sentence, limit-count))
			}
			break
		}
		sb.WriteString(sentence)
		count += n
	}
	if sb.Len() == 0 {
		return Truncate(in, limit)
	}
	return strings.TrimRightFunc(sb.String(), unicode.IsSpace)
}

// Truncate keeps first limit characters of in.
func Truncate(in string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(in)
	if len(r) <= limit {
		return in
	}
	return string(r[:limit])
}

// Words returns an iterator over white space separated words, empty words are
// skipped.
func Words(in string) iter.Seq[string] {
	return func(yield func(string) bool) {
		var word strings.Builder
		for _, sym := range in {
			if isSeparator(sym) {
				if word.Len() > 0 {
					if !yield(word.String()) {
						return
					}
					word.Reset()
				}
				continue
			}
			word.WriteRune(sym)
		}
		if word.Len() > 0 {
			yield(word.String())
		}
	}
}

func WordCount(in string) (n int) {
	for range Words(in) {
		n++
	}
	return n
}

func isSeparator(r rune) bool {
	if uint32(r) <= unicode.MaxLatin1 {
		switch r {
		case '\t', '\n', '\v', '\f', '\r', ' ', 0x85, 0xA0:
			return true
		}
		return false
	}
	return unicode.IsSpace(r)
}
