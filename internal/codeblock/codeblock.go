// Package codeblock pulls fenced code blocks out of markdown text.
package codeblock

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrNotEnoughBlocks = errors.New("codeblock: not enough fenced blocks")

// fenceLine matches an opening or closing fence (``` or ~~~, at least three)
// indented by no more than three spaces, capturing the info string.
var fenceLine = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})[ \t]*([^`]*?)[ \t]*$")

// Block is one fenced block. Lang is the first word of the info string.
type Block struct {
	Lang string
	Code string
}

// Find returns every fenced block in document order. A block left open at the
// end of the text runs to the end of the text.
func Find(markdown string) []Block {
	markdown = strings.ReplaceAll(markdown, "\r\n", "\n")
	lines := strings.Split(markdown, "\n")

	var (
		out    []Block
		open   bool
		fence  string
		lang   string
		buffer []string
	)
	for _, line := range lines {
		m := fenceLine.FindStringSubmatch(line)
		if !open {
			if m == nil {
				continue
			}
			open = true
			fence = m[1]
			lang = firstWord(m[2])
			buffer = buffer[:0]
			continue
		}
		if m != nil && m[2] == "" && m[1][0] == fence[0] && len(m[1]) >= len(fence) {
			out = append(out, Block{Lang: lang, Code: strings.Join(buffer, "\n")})
			open = false
			continue
		}
		buffer = append(buffer, line)
	}
	if open {
		out = append(out, Block{Lang: lang, Code: strings.TrimRight(strings.Join(buffer, "\n"), "\n")})
	}
	return out
}

// Pair returns the first two blocks of markdown, the translated source and the
// renaming JSON of an engine response.
func Pair(markdown string) (Block, Block, error) {
	blocks := Find(markdown)
	if len(blocks) < 2 {
		return Block{}, Block{}, fmt.Errorf("%w: found %d, want 2", ErrNotEnoughBlocks, len(blocks))
	}
	return blocks[0], blocks[1], nil
}

func firstWord(info string) string {
	if f := strings.Fields(info); len(f) > 0 {
		return f[0]
	}
	return ""
}
