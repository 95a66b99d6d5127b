package retrieval

import (
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator names accepted by NewEstimator.
const (
	EstimatorRune     = "rune"
	EstimatorTiktoken = "tiktoken"
)

// DefaultEncoding is the tiktoken encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// tiktokenCacheEnv is where tiktoken-go looks for BPE files before downloading them.
const tiktokenCacheEnv = "TIKTOKEN_CACHE_DIR"

// SetTiktokenCacheDir points tiktoken at a directory of pre-fetched BPE files.
// Empty leaves the default (a temp dir, filled from the network on first use).
func SetTiktokenCacheDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.Setenv(tiktokenCacheEnv, dir); err != nil {
		return fmt.Errorf("set %s: %w", tiktokenCacheEnv, err)
	}
	return nil
}

// TokenEstimator approximates how many backend tokens a text costs.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// RuneEstimator assumes roughly four runes per token.
type RuneEstimator struct{}

// EstimateTokens returns ceil(runes/4), and 0 only for empty text.
func (RuneEstimator) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TiktokenEstimator counts tokens with a BPE encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator resolves name as an encoding first, then as a model name.
func NewTiktokenEstimator(name string) (*TiktokenEstimator, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		var modelErr error
		enc, modelErr = tiktoken.EncodingForModel(name)
		if modelErr != nil {
			return nil, fmt.Errorf("resolve tiktoken encoding %q (BPE files are fetched on first use "+
				"unless %s holds them): %w", name, tiktokenCacheEnv, err)
		}
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// EstimateTokens returns the exact BPE token count.
func (e *TiktokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}

// NewEstimator builds the named estimator. Empty means rune.
func NewEstimator(kind, encoding string) (TokenEstimator, error) {
	switch kind {
	case "", EstimatorRune:
		return RuneEstimator{}, nil
	case EstimatorTiktoken:
		return NewTiktokenEstimator(encoding)
	default:
		return nil, fmt.Errorf("unknown token estimator %q", kind)
	}
}
