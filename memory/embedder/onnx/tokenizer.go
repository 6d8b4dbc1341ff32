//go:build onnx

package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// maxWordChars is the longest word WordPiece will split; longer words map to
// the unknown token, as in the reference BERT tokenizer.
const maxWordChars = 100

// wordPiece is an uncased BERT WordPiece tokenizer reading the vocabulary of
// a Hugging Face tokenizer.json.
type wordPiece struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
}

func loadWordPiece(path string) (*wordPiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var file struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocabulary", path)
	}

	wp := &wordPiece{vocab: file.Model.Vocab}
	for token, dst := range map[string]*int64{"[CLS]": &wp.cls, "[SEP]": &wp.sep, "[UNK]": &wp.unk} {
		id, ok := wp.vocab[token]
		if !ok {
			return nil, fmt.Errorf("tokenizer %s has no %s token", path, token)
		}
		*dst = id
	}
	return wp, nil
}

// Tokenize lowercases text, splits it on whitespace and punctuation, and maps
// each word to WordPiece ids. Special tokens are not added.
func (wp *wordPiece) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		ids = append(ids, wp.pieces(word)...)
	}
	return ids
}

// Encode returns ids framed by [CLS] and [SEP], truncated to maxLen, and the
// matching attention mask, both padded to maxLen.
func (wp *wordPiece) Encode(text string, maxLen int) (ids, mask []int64) {
	tokens := wp.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	ids[0] = wp.cls
	copy(ids[1:], tokens)
	ids[len(tokens)+1] = wp.sep
	for i := 0; i < len(tokens)+2; i++ {
		mask[i] = 1
	}
	return ids, mask
}

// pieces greedily matches the longest vocabulary prefix. A word with any
// unmatched remainder becomes a single [UNK].
func (wp *wordPiece) pieces(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int64{wp.unk}
	}

	var out []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64 = -1
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if v, ok := wp.vocab[sub]; ok {
				id = v
				break
			}
		}
		if id < 0 {
			return []int64{wp.unk}
		}
		out = append(out, id)
		start = end
	}
	return out
}

// splitWords splits on whitespace and emits each punctuation rune as its own
// word.
func splitWords(text string) []string {
	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
