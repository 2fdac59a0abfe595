package tokencount

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/types"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Counter counts tokens with a tiktoken encoding. The encoding is
// initialized lazily on first use (tiktoken may download BPE data); if
// initialization fails the counter degrades to character-based estimation
// instead of failing callers.
type Counter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	fallback types.TokenCounter
	once     sync.Once
	logger   *zap.Logger
}

var _ types.TokenCounter = (*Counter)(nil)

// New creates a counter for the given encoding name. An empty encoding
// falls back to DefaultEncoding.
func New(encoding string, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Counter{
		encoding: encoding,
		fallback: types.NewEstimateCounter(),
		logger:   logger.With(zap.String("component", "token_counter")),
	}
}

// ForModel creates a counter using the encoding registered for the model
// name, defaulting to DefaultEncoding for unknown models. The longest
// matching prefix wins so versioned model names resolve to their family.
func ForModel(model string, logger *zap.Logger) *Counter {
	if enc, ok := modelEncodings[model]; ok {
		return New(enc, logger)
	}
	var bestPrefix, bestEnc string
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix, bestEnc = prefix, enc
		}
	}
	if bestEnc != "" {
		return New(bestEnc, logger)
	}
	return New(DefaultEncoding, logger)
}

// init lazily loads the encoding.
func (c *Counter) init() {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.logger.Warn("tiktoken encoding unavailable, falling back to estimation",
				zap.String("encoding", c.encoding),
				zap.Error(err))
			return
		}
		c.enc = enc
	})
}

// CountTokens implements types.TokenCounter.
func (c *Counter) CountTokens(text string) int {
	c.init()
	if c.enc == nil {
		return c.fallback.CountTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountWindow totals the tokens of a message window including per-message
// framing overhead.
func (c *Counter) CountWindow(msgs []types.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := 0
	for _, msg := range msgs {
		// Per-message overhead: start marker, role, separator, end marker.
		total += 4
		total += c.CountTokens(string(msg.Role))
		total += c.CountTokens(msg.Content)
	}
	return total + 3
}

// Name identifies the active encoding.
func (c *Counter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", c.encoding)
}
