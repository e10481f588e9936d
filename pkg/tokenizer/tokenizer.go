// Package tokenizer encodes and decodes text with BPE ranks bundled into the
// binary, so no network fetch happens at startup.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the GPT-2 byte-level BPE vocabulary.
const DefaultEncoding = "r50k_base"

// specialCandidates are the special tokens known across the bundled
// encodings. Only those an encoding actually defines are treated as special.
var specialCandidates = []string{
	"<|endoftext|>",
	"<|fim_prefix|>",
	"<|fim_middle|>",
	"<|fim_suffix|>",
	"<|endofprompt|>",
}

var setLoader sync.Once

// Tokenizer is safe for concurrent use.
type Tokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
	special  map[int]string
}

// New loads the named encoding. An empty name selects DefaultEncoding.
func New(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	setLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encoding, err)
	}

	t := &Tokenizer{
		encoding: encoding,
		enc:      enc,
		special:  make(map[int]string),
	}

	for _, s := range specialCandidates {
		ids := enc.Encode(s, []string{"all"}, nil)
		plain := enc.Encode(s, nil, nil)
		if len(ids) == 1 && len(plain) > 1 {
			t.special[ids[0]] = s
		}
	}

	return t, nil
}

// Encoding returns the encoding name.
func (t *Tokenizer) Encoding() string {
	return t.encoding
}

// Encode tokenizes text. Special token strings in text encode to their
// special ids.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, []string{"all"}, nil)
}

// Decode turns tokens back into text, dropping special tokens.
func (t *Tokenizer) Decode(tokens []int) string {
	kept := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if t.IsSpecial(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return t.enc.Decode(kept)
}

// IsSpecial reports whether tok is a special token id.
func (t *Tokenizer) IsSpecial(tok int) bool {
	_, ok := t.special[tok]
	return ok
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.Encode(text))
}
