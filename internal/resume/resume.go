// Package resume turns an uploaded résumé file into the text segments the
// interview core works with: chunks for the vector index and an early-content
// sample for role inference and question generation.
package resume

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// DefaultChunkSize and DefaultChunkOverlap are measured in characters.
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// sampleChunks is how many leading chunks feed role inference. Résumés
	// front-load the summary and most recent experience, so early chunks
	// carry the densest signal.
	sampleChunks = 3
)

// ExtractText reads a PDF file and returns its plain text.
func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", fmt.Errorf("pdf %s contains no extractable text", path)
	}
	return text, nil
}

// Split divides text into overlapping chunks of roughly size characters.
// It prefers to break on paragraph or line boundaries near the chunk end,
// falling back to word boundaries, then a hard cut. Overlap must be smaller
// than size; zero or negative values fall back to the defaults.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
		// breakPoint can cut close enough to start that end-overlap would not
		// move forward when overlap >= size/2. Force at least one rune of
		// progress so the loop always terminates.
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// breakPoint finds a natural cut position in runes[start:end], searching
// backwards from end for a paragraph break, then a newline, then a space.
// The cut never retreats past the midpoint of the window.
func breakPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2

	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && i > start && runes[i-1] == '\n' {
			return i
		}
	}
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	for i := end - 1; i > floor; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return end
}

// Sample joins the first few chunks into the excerpt used for role inference
// and résumé-grounded question prompts.
func Sample(chunks []string) string {
	n := sampleChunks
	if len(chunks) < n {
		n = len(chunks)
	}
	return strings.Join(chunks[:n], "\n")
}
