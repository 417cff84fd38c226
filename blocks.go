package prompta

import (
	"regexp"
	"strings"
)

// Block types produced by ParseBlocks.
const (
	BlockText = "text"
	BlockCode = "code"
	BlockSQL  = "sql"
)

// Block is one typed segment of a completion: prose or a fenced excerpt.
type Block struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Blocks is an ordered sequence of blocks in their original order.
type Blocks []Block

// fencePattern matches a triple-backtick region. The optional first group is
// the language tag line; the body excludes one newline before the closing fence.
var fencePattern = regexp.MustCompile("(?s)```(?:([^\\n`]*)\\n)?(.*?)\\n?```")

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_+#.\-]+$`)

// ParseBlocks splits completion text into prose and fenced code blocks.
// Text blocks are trimmed and dropped when empty; code bodies are kept verbatim.
func ParseBlocks(text string) Blocks {
	var blocks Blocks
	boundary := 0

	for _, m := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		if prose := strings.TrimSpace(text[boundary:m[0]]); prose != "" {
			blocks = append(blocks, Block{Type: BlockText, Content: prose})
		}

		tag := ""
		if m[2] >= 0 {
			tag = text[m[2]:m[3]]
		}
		blocks = append(blocks, Block{
			Type:    normalizeFenceTag(tag),
			Content: text[m[4]:m[5]],
		})

		boundary = m[1]
	}

	if prose := strings.TrimSpace(text[boundary:]); prose != "" {
		blocks = append(blocks, Block{Type: BlockText, Content: prose})
	}

	return blocks
}

// normalizeFenceTag maps a fence language tag to a block type.
func normalizeFenceTag(tag string) string {
	tag = strings.TrimSpace(tag)
	switch {
	case tag == "":
		return BlockCode
	case strings.EqualFold(tag, BlockSQL):
		return BlockSQL
	case !tagPattern.MatchString(tag):
		return BlockCode
	default:
		return tag
	}
}

// OfType returns the blocks of the given type, in order.
func (b Blocks) OfType(blockType string) Blocks {
	var out Blocks
	for _, block := range b {
		if block.Type == blockType {
			out = append(out, block)
		}
	}
	return out
}

// First returns the first block of the given type, or a zero Block.
func (b Blocks) First(blockType string) Block {
	for _, block := range b {
		if block.Type == blockType {
			return block
		}
	}
	return Block{}
}

// Text joins the content of all text blocks with blank lines.
func (b Blocks) Text() string {
	parts := make([]string, 0, len(b))
	for _, block := range b.OfType(BlockText) {
		parts = append(parts, block.Content)
	}
	return strings.Join(parts, "\n\n")
}
