package contextbuilder

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE encoding used by gpt-3.5-turbo and gpt-4 class models.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts model tokens. Implementations must be deterministic and
// safe for concurrent use.
type Tokenizer interface {
	Count(text string) int
}

var loaderOnce sync.Once

// TiktokenTokenizer counts tokens with a tiktoken BPE encoding. The
// vocabulary is loaded from the embedded offline loader, so no network access
// is needed.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding (DefaultEncoding if empty).
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Count returns the number of tokens in text; 0 for the empty string.
func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}
