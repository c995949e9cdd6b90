package kb

import (
	"fmt"
	"sort"
	"strings"
)

const (
	defaultParentTokens  = 2000
	defaultChildTokens   = 256
	defaultOverlapTokens = 50

	// Token budgets are approximated as words * 1.3.
	wordsPerToken = 1.3
)

// Chunker splits extracted content into an overlapping parent/child
// window hierarchy: large parents for context, small children for
// precise search matching.
type Chunker struct {
	ParentTokens  int
	ChildTokens   int
	OverlapTokens int
}

// NewChunker returns a chunker, substituting defaults for non-positive sizes.
func NewChunker(parentTokens, childTokens, overlapTokens int) *Chunker {
	c := &Chunker{
		ParentTokens:  parentTokens,
		ChildTokens:   childTokens,
		OverlapTokens: overlapTokens,
	}
	if c.ParentTokens <= 0 {
		c.ParentTokens = defaultParentTokens
	}
	if c.ChildTokens <= 0 {
		c.ChildTokens = defaultChildTokens
	}
	if c.OverlapTokens <= 0 {
		c.OverlapTokens = defaultOverlapTokens
	}
	return c
}

// Chunk concatenates the text of textual elements in original order and
// splits it into parent windows, then each parent into child windows
// with half the overlap. Empty input text yields zero chunks.
func (c *Chunker) Chunk(elements []ContentElement, docID, filename string) []*Chunk {
	var parts []string
	var pages []int
	seen := make(map[int]struct{})
	for _, el := range elements {
		if !el.Kind.Textual() {
			continue
		}
		parts = append(parts, el.Text)
		if el.Page > 0 {
			if _, ok := seen[el.Page]; !ok {
				seen[el.Page] = struct{}{}
				pages = append(pages, el.Page)
			}
		}
	}
	sort.Ints(pages)

	words := strings.Fields(strings.Join(parts, "\n\n"))
	parentWindows := splitWindows(words, c.ParentTokens, c.OverlapTokens)

	var chunks []*Chunk
	for i, parentWords := range parentWindows {
		parentID := fmt.Sprintf("%s_p%03d", docID, i)
		chunks = append(chunks, &Chunk{
			ID:       parentID,
			DocID:    docID,
			Filename: filename,
			Text:     strings.Join(parentWords, " "),
			IsParent: true,
			Pages:    append([]int(nil), pages...),
		})
		for j, childWords := range splitWindows(parentWords, c.ChildTokens, c.OverlapTokens/2) {
			chunks = append(chunks, &Chunk{
				ID:       fmt.Sprintf("%s_c%03d", parentID, j),
				DocID:    docID,
				Filename: filename,
				Text:     strings.Join(childWords, " "),
				IsParent: false,
				ParentID: parentID,
			})
		}
	}
	return chunks
}

// splitWindows slides a word window of roughly tokenBudget tokens over
// words, stepping by the window size minus the overlap. The loop stops
// when the window reaches the end or fails to advance (overlap >= window
// would otherwise never terminate).
func splitWindows(words []string, tokenBudget, overlapTokens int) [][]string {
	if len(words) == 0 {
		return nil
	}
	targetWords := int(float64(tokenBudget) / wordsPerToken)
	if targetWords < 1 {
		targetWords = 1
	}
	overlapWords := int(float64(overlapTokens) / wordsPerToken)

	var windows [][]string
	for start := 0; start < len(words); {
		end := start + targetWords
		if end > len(words) {
			end = len(words)
		}
		windows = append(windows, words[start:end])
		if end == len(words) {
			break
		}
		next := end - overlapWords
		if next <= start {
			break
		}
		start = next
	}
	return windows
}
