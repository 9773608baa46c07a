// Package tokens approximates token counts for calls whose responses
// carry no usage object. Estimates feed logs and metrics only; they are
// never stored in a spend record.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens with tiktoken for OpenAI-family models and
// falls back to a chars/4 approximation for everything else.
type Estimator struct {
	mu     sync.Mutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates an Estimator.
func NewEstimator() *Estimator {
	return &Estimator{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// Estimate returns an approximate token count for text under the given
// model's encoding.
func (e *Estimator) Estimate(model, text string) int {
	if text == "" {
		return 0
	}
	codec, err := e.codec(model)
	if err != nil {
		return fallbackEstimate(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return fallbackEstimate(text)
	}
	return len(ids)
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	encoding := encodingForModel(model)

	e.mu.Lock()
	defer e.mu.Unlock()
	if codec, ok := e.codecs[encoding]; ok {
		return codec, nil
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}
	e.codecs[encoding] = codec
	return codec, nil
}

// encodingForModel maps model names to tokenizer encodings.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O-series and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo, embeddings, and the default
func encodingForModel(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	default:
		return tokenizer.Cl100kBase
	}
}

// fallbackEstimate is the rough English-text heuristic of four
// characters per token.
func fallbackEstimate(text string) int {
	return (len(text) + 3) / 4
}
