package tokens

import (
	"github.com/mudler/xlog"
	"github.com/pkoukk/tiktoken-go"
)

// Encoding used by the estimator. cl100k_base matches the GPT-4 family and
// is a close enough approximation for other chat models.
const encodingName = "cl100k_base"

// Estimator approximates generation-model token counts. The primary path
// uses a tiktoken subword encoder; when the encoder is unavailable it falls
// back to len(text)/4. Count never fails and is safe for concurrent use.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator loads the tiktoken encoding. A load failure is logged and
// the estimator degrades to the character-based fallback.
func NewEstimator() *Estimator {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		xlog.Warn("Tokenizer unavailable, falling back to character estimate", "encoding", encodingName, "error", err)
		return &Estimator{}
	}
	return &Estimator{enc: enc}
}

// Count returns the approximate token count of text.
func (e *Estimator) Count(text string) (n int) {
	if e == nil || e.enc == nil {
		return len(text) / 4
	}
	defer func() {
		if r := recover(); r != nil {
			n = len(text) / 4
		}
	}()
	return len(e.enc.Encode(text, nil, nil))
}
