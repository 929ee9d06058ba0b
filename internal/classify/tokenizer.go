package classify

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// wordpiece is a BERT-style WordPiece tokenizer with premise/hypothesis pair
// encoding for NLI cross-encoders. Token IDs come from vocab.txt line
// numbers (0-indexed).
type wordpiece struct {
	ids map[string]int64

	padID int64
	unkID int64
	clsID int64
	sepID int64
}

func loadWordpiece(vocabPath string) (*wordpiece, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close()

	ids := make(map[string]int64, 32000)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ids[scanner.Text()] = int64(len(ids))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("vocab: file is empty: %s", vocabPath)
	}

	w := &wordpiece{ids: ids}
	for _, s := range []struct {
		name string
		dest *int64
	}{
		{"[PAD]", &w.padID},
		{"[UNK]", &w.unkID},
		{"[CLS]", &w.clsID},
		{"[SEP]", &w.sepID},
	} {
		id, ok := ids[s.name]
		if !ok {
			return nil, fmt.Errorf("vocab: missing special token %s", s.name)
		}
		*s.dest = id
	}
	return w, nil
}

// encodePair builds [CLS] premise [SEP] hypothesis [SEP] with segment IDs 0
// for the premise half and 1 for the hypothesis half, padded to maxLen. The
// premise is truncated first when the pair does not fit; the hypothesis is a
// short template and must survive intact for NLI to mean anything.
func (w *wordpiece) encodePair(premise, hypothesis string, maxLen int) (ids, mask, typeIDs []int64) {
	a := w.subwordize(premise)
	b := w.subwordize(hypothesis)

	// Room for [CLS] a... [SEP] b... [SEP].
	budget := maxLen - 3
	if len(b) > budget {
		b = b[:budget]
	}
	if len(a) > budget-len(b) {
		a = a[:budget-len(b)]
	}

	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	typeIDs = make([]int64, maxLen)

	pos := 0
	put := func(id, seg int64) {
		ids[pos] = id
		mask[pos] = 1
		typeIDs[pos] = seg
		pos++
	}

	put(w.clsID, 0)
	for _, id := range a {
		put(id, 0)
	}
	put(w.sepID, 0)
	for _, id := range b {
		put(id, 1)
	}
	put(w.sepID, 1)
	// Remaining positions stay zero: padID=0, mask=0, segment 0.
	return ids, mask, typeIDs
}

// subwordize runs basic tokenization followed by WordPiece decomposition and
// vocabulary lookup.
func (w *wordpiece) subwordize(text string) []int64 {
	var out []int64
	for _, token := range basicTokens(text) {
		for _, sub := range w.split(token) {
			out = append(out, w.lookup(sub))
		}
	}
	return out
}

// split decomposes one basic token into the longest matching subwords,
// continuation pieces prefixed with "##". Tokens that cannot be decomposed
// collapse to [UNK].
func (w *wordpiece) split(token string) []string {
	runes := []rune(token)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) > 100 {
		return []string{"[UNK]"}
	}

	var subs []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		matched := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := w.ids[sub]; ok {
				matched = sub
				break
			}
			end--
		}
		if matched == "" {
			return []string{"[UNK]"}
		}
		subs = append(subs, matched)
		start = end
	}
	return subs
}

func (w *wordpiece) lookup(token string) int64 {
	if id, ok := w.ids[token]; ok {
		return id
	}
	return w.unkID
}

// basicTokens lowercases, strips accents and control characters, and splits
// on whitespace and punctuation, keeping punctuation as standalone tokens.
func basicTokens(text string) []string {
	var cleaned strings.Builder
	cleaned.Grow(len(text))
	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case r == 0 || r == 0xFFFD:
		case unicode.In(r, unicode.Mn): // combining accent marks
		case isBertControl(r):
		case isBertSpace(r):
			cleaned.WriteRune(' ')
		default:
			cleaned.WriteRune(r)
		}
	}

	var tokens []string
	for _, word := range strings.Fields(cleaned.String()) {
		var cur strings.Builder
		for _, r := range word {
			if isBertPunct(r) {
				if cur.Len() > 0 {
					tokens = append(tokens, cur.String())
					cur.Reset()
				}
				tokens = append(tokens, string(r))
				continue
			}
			cur.WriteRune(r)
		}
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
		}
	}
	return tokens
}

// Character classes below match BERT's reference tokenizer.

func isBertSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || unicode.Is(unicode.Zs, r)
}

func isBertControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isBertPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
