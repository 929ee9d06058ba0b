package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testVocab = []string{
	"[PAD]",    // 0
	"[UNK]",    // 1
	"[CLS]",    // 2
	"[SEP]",    // 3
	"help",     // 4
	"me",       // 5
	"##lp",     // 6
	"he",       // 7
	"this",     // 8
	"text",     // 9
	"is",       // 10
	"about",    // 11
	"distress", // 12
	".",        // 13
	"##me",     // 14
	"hello",    // 15
}

func loadTestVocab(t *testing.T) *wordpiece {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(testVocab, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tok, err := loadWordpiece(path)
	if err != nil {
		t.Fatalf("load vocab: %v", err)
	}
	return tok
}

func TestLoadWordpieceMissingSpecials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("[PAD]\n[UNK]\nhello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadWordpiece(path); err == nil {
		t.Fatal("expected error for vocab without [CLS]/[SEP]")
	}
}

func TestEncodePairLayout(t *testing.T) {
	tok := loadTestVocab(t)
	ids, mask, typeIDs := tok.encodePair("help me", "this text is about distress.", 16)

	wantIDs := []int64{2, 4, 5, 3, 8, 9, 10, 11, 12, 13, 3, 0, 0, 0, 0, 0}
	if len(ids) != 16 {
		t.Fatalf("len(ids) = %d", len(ids))
	}
	for i := range wantIDs {
		if ids[i] != wantIDs[i] {
			t.Fatalf("ids[%d] = %d, want %d (full: %v)", i, ids[i], wantIDs[i], ids)
		}
	}
	for i := 0; i < 11; i++ {
		if mask[i] != 1 {
			t.Fatalf("mask[%d] = %d, want 1", i, mask[i])
		}
	}
	for i := 11; i < 16; i++ {
		if mask[i] != 0 {
			t.Fatalf("mask[%d] = %d, want 0 padding", i, mask[i])
		}
	}
	// Segment 0 covers [CLS] premise [SEP]; segment 1 covers the hypothesis.
	for i := 0; i < 4; i++ {
		if typeIDs[i] != 0 {
			t.Fatalf("typeIDs[%d] = %d, want 0", i, typeIDs[i])
		}
	}
	for i := 4; i < 11; i++ {
		if typeIDs[i] != 1 {
			t.Fatalf("typeIDs[%d] = %d, want 1", i, typeIDs[i])
		}
	}
}

func TestEncodePairTruncatesPremiseFirst(t *testing.T) {
	tok := loadTestVocab(t)
	premise := strings.Repeat("help me ", 50)
	ids, _, _ := tok.encodePair(premise, "this text is about distress.", 10)

	if len(ids) != 10 {
		t.Fatalf("len(ids) = %d", len(ids))
	}
	// Budget 7 after specials: hypothesis keeps its 6 tokens, premise gets 1.
	want := []int64{2, 4, 3, 8, 9, 10, 11, 12, 13, 3}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestSubwordize(t *testing.T) {
	tok := loadTestVocab(t)

	// Longest-match decomposition with ## continuations.
	got := tok.subwordize("helpme")
	want := []int64{4, 14} // help + ##me
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("subwordize(helpme) = %v, want %v", got, want)
	}

	// Undecomposable tokens collapse to [UNK].
	got = tok.subwordize("zzz")
	if len(got) != 1 || got[0] != tok.unkID {
		t.Fatalf("subwordize(zzz) = %v, want [UNK]", got)
	}

	// Lowercasing and accent stripping happen before lookup.
	got = tok.subwordize("Héllo")
	if len(got) != 1 || got[0] != 15 {
		t.Fatalf("subwordize(Héllo) = %v, want [15]", got)
	}
}

func TestBasicTokensSplitsPunctuation(t *testing.T) {
	got := basicTokens("Help, me!")
	want := []string{"help", ",", "me", "!"}
	if len(got) != len(want) {
		t.Fatalf("basicTokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("basicTokens = %v, want %v", got, want)
		}
	}
}
