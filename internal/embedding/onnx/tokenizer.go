package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	clsID = 101
	sepID = 102
	unkID = 100
)

// tokenizer is a lower-casing WordPiece tokenizer over a HuggingFace
// tokenizer.json vocabulary.
type tokenizer struct {
	vocab map[string]int
}

func loadTokenizer(path string) (*tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTokenizer(data)
}

func parseTokenizer(data []byte) (*tokenizer, error) {
	var raw struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer has an empty vocabulary")
	}
	return &tokenizer{vocab: raw.Model.Vocab}, nil
}

// tokenize returns WordPiece ids without the [CLS]/[SEP] markers.
func (t *tokenizer) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

func (t *tokenizer) wordPiece(word string) []int64 {
	var ids []int64
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			ids = append(ids, unkID)
			start++
		}
	}
	return ids
}

// encode frames the tokens with [CLS] and [SEP], truncating and padding to
// seqLen. It returns the input ids and the attention mask.
func (t *tokenizer) encode(text string, seqLen int) ([]int64, []int64) {
	ids := make([]int64, seqLen)
	mask := make([]int64, seqLen)

	toks := t.tokenize(text)
	if len(toks) > seqLen-2 {
		toks = toks[:seqLen-2]
	}

	ids[0], mask[0] = clsID, 1
	for i, id := range toks {
		ids[i+1], mask[i+1] = id, 1
	}
	end := len(toks) + 1
	ids[end], mask[end] = sepID, 1
	return ids, mask
}
