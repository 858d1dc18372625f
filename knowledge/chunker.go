package knowledge

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docdraft/docdraft/config"
)

const (
	// DefaultChunkTokens is the target chunk size in tokens.
	DefaultChunkTokens = 1600
	// DefaultOverlapTokens is carried from the tail of each chunk into
	// the next so sentences straddling a boundary appear in both.
	DefaultOverlapTokens = 200

	chunkerEncoding = "cl100k_base"
)

// Chunker splits document text into overlapping token windows,
// preferring paragraph boundaries over hard token cuts.
type Chunker struct {
	targetTokens  int
	overlapTokens int
	enc           *tiktoken.Tiktoken
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkTokens sets the target chunk size in tokens.
func WithChunkTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.targetTokens = n }
}

// WithOverlapTokens sets the overlap carried between adjacent chunks.
func WithOverlapTokens(n int) ChunkerOption {
	return func(c *Chunker) { c.overlapTokens = n }
}

// NewChunker creates a Chunker with the given options.
func NewChunker(opts ...ChunkerOption) (*Chunker, error) {
	c := &Chunker{
		targetTokens:  DefaultChunkTokens,
		overlapTokens: DefaultOverlapTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := config.ValidateChunkerConfig(c.targetTokens, c.overlapTokens); err != nil {
		return nil, err
	}
	enc, err := tiktoken.GetEncoding(chunkerEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding: %w", err)
	}
	c.enc = enc
	return c, nil
}

// Split breaks text into chunks of roughly targetTokens tokens. Whole
// paragraphs are packed greedily; a paragraph larger than the target is
// cut on raw token windows. Adjacent chunks share overlapTokens tokens.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var cur []string
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunk := strings.Join(cur, "\n\n")
		chunks = append(chunks, chunk)
		tail := c.tail(chunk)
		cur = cur[:0]
		curTokens = 0
		if tail != "" {
			cur = append(cur, tail)
			curTokens = c.count(tail)
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pt := c.count(para)

		if pt > c.targetTokens {
			flush()
			chunks = append(chunks, c.hardSplit(para)...)
			cur = cur[:0]
			curTokens = 0
			if last := len(chunks) - 1; last >= 0 {
				if tail := c.tail(chunks[last]); tail != "" {
					cur = append(cur, tail)
					curTokens = c.count(tail)
				}
			}
			continue
		}

		if curTokens+pt > c.targetTokens {
			flush()
		}
		cur = append(cur, para)
		curTokens += pt
	}

	if len(cur) > 0 {
		chunk := strings.Join(cur, "\n\n")
		// avoid emitting an overlap-only remainder
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], chunk) {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func (c *Chunker) count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// tail returns the last overlapTokens tokens of chunk, decoded.
func (c *Chunker) tail(chunk string) string {
	if c.overlapTokens <= 0 {
		return ""
	}
	ids := c.enc.Encode(chunk, nil, nil)
	if len(ids) <= c.overlapTokens {
		return ""
	}
	return strings.TrimSpace(c.enc.Decode(ids[len(ids)-c.overlapTokens:]))
}

// hardSplit cuts an oversized paragraph on raw token windows.
func (c *Chunker) hardSplit(para string) []string {
	ids := c.enc.Encode(para, nil, nil)
	step := c.targetTokens - c.overlapTokens
	var out []string
	for start := 0; start < len(ids); start += step {
		end := start + c.targetTokens
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, strings.TrimSpace(c.enc.Decode(ids[start:end])))
		if end == len(ids) {
			break
		}
	}
	return out
}
