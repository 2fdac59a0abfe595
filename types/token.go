package types

// TokenCounter is the minimal token counting interface. Implementations may
// be backed by a real tokenizer or by estimation; callers must tolerate
// approximate results.
type TokenCounter interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) int
}

// EstimateCounter provides a simple character-based token estimation.
// CJK characters are weighted more heavily than Latin text.
type EstimateCounter struct {
	charsPerToken float64
	msgOverhead   int
}

// NewEstimateCounter creates a new EstimateCounter.
func NewEstimateCounter() *EstimateCounter {
	return &EstimateCounter{
		charsPerToken: 4.0,
		msgOverhead:   4,
	}
}

// CountTokens counts tokens in text.
func (c *EstimateCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjkCount, otherCount int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjkCount++
		} else {
			otherCount++
		}
	}
	tokens := float64(cjkCount)/1.5 + float64(otherCount)/c.charsPerToken
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}

// CountMessageTokens counts tokens in a message, including a fixed
// per-message overhead.
func (c *EstimateCounter) CountMessageTokens(msg Message) int {
	tokens := c.msgOverhead
	tokens += c.CountTokens(msg.Content)
	if msg.AgentID != "" {
		tokens += c.CountTokens(msg.AgentID)
	}
	return tokens
}

// CountMessagesTokens counts total tokens in a message slice.
func (c *EstimateCounter) CountMessagesTokens(msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += c.CountMessageTokens(msg)
	}
	return total
}
