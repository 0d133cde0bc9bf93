// Copyright 2019 Bull S.A.S. Atos Technologies - Bull, Rue Jean Jaures, B.P.68, 78340, Les Clayes-sous-Bois, France.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sshconfig edits OpenSSH client configuration documents.
//
// A document is seen as a sequence of opaque lines and blocks. A block starts
// at a "Host" or "Match" line and runs until the next one; blank and comment
// lines ending a block belong to the surrounding text rather than to the block.
// Only Host blocks declaring a single pattern are ever edited, everything else
// is passed through untouched.
package sshconfig

import (
	"strings"
)

const defaultIndent = "    "

type line struct {
	text string
	// eol is the line terminator, empty for a last unterminated line
	eol string
}

type block struct {
	// start is the index of the header line
	start int
	// end is the index following the last setting line of the block
	end int
}

type document struct {
	lines []line
	eol   string
	// blocks are the Host blocks for the edited identifier, in document order
	blocks []block
}

func splitLines(doc string) []line {
	var lines []line
	for len(doc) > 0 {
		i := strings.IndexByte(doc, '\n')
		if i < 0 {
			lines = append(lines, line{text: doc})
			break
		}
		l := line{text: doc[:i], eol: "\n"}
		if strings.HasSuffix(l.text, "\r") {
			l.text, l.eol = l.text[:len(l.text)-1], "\r\n"
		}
		lines = append(lines, l)
		doc = doc[i+1:]
	}
	return lines
}

func isTrivia(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || strings.HasPrefix(t, "#")
}

// splitKeyword splits a configuration line into its keyword and arguments.
// The keyword is separated from arguments by spaces and/or a single '='.
func splitKeyword(text string) (string, string) {
	t := strings.TrimLeft(text, " \t")
	i := strings.IndexAny(t, " \t=")
	if i < 0 {
		return t, ""
	}
	keyword, rest := t[:i], strings.TrimLeft(t[i:], " \t")
	if strings.HasPrefix(rest, "=") {
		rest = strings.TrimLeft(rest[1:], " \t")
	}
	return keyword, strings.TrimRight(rest, " \t")
}

// splitArgs splits header arguments the way ssh does: on spaces, with single
// or double quotes grouping words and removed from the result.
func splitArgs(args string) ([]string, bool) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
	)
	for _, r := range args {
		switch {
		case quote == 0 && !inWord && r == '#':
			// the rest of the line is a comment
			return words, true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, false
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, true
}

func parse(doc, identifier string) (*document, error) {
	if err := checkIdentifier(identifier); err != nil {
		return nil, err
	}
	d := &document{lines: splitLines(doc), eol: "\n"}
	if len(d.lines) > 0 && d.lines[0].eol != "" {
		d.eol = d.lines[0].eol
	}

	var headers []int
	var matching []bool
	for i, l := range d.lines {
		keyword, args := splitKeyword(l.text)
		kw := strings.ToLower(keyword)
		if kw != "host" && kw != "match" {
			continue
		}
		words, ok := splitArgs(args)
		if !ok {
			return nil, &ParseError{Line: i + 1, Text: l.text, Reason: "unterminated quote"}
		}
		match := false
		if kw == "host" {
			if len(words) == 0 {
				return nil, &ParseError{Line: i + 1, Text: l.text, Reason: "Host declaration without pattern"}
			}
			for _, w := range words {
				if w == identifier {
					match = true
				}
			}
			if match && len(words) > 1 {
				return nil, &ParseError{Line: i + 1, Text: l.text, Reason: "Host " + identifier + " is declared together with other patterns"}
			}
		}
		headers = append(headers, i)
		matching = append(matching, match)
	}

	for h, start := range headers {
		if !matching[h] {
			continue
		}
		end := len(d.lines)
		if h+1 < len(headers) {
			end = headers[h+1]
		}
		for end > start+1 && isTrivia(d.lines[end-1].text) {
			end--
		}
		d.blocks = append(d.blocks, block{start: start, end: end})
	}
	return d, nil
}

func checkIdentifier(identifier string) error {
	if identifier == "" || strings.ContainsAny(identifier, " \t\r\n\"'#") {
		return &ParseError{Text: identifier, Reason: "invalid host identifier"}
	}
	return nil
}

func checkSettings(settings *Settings) error {
	for _, k := range settings.Keys() {
		v, _ := settings.Get(k)
		if k == "" || strings.ContainsAny(k, " \t\r\n=\"'#") {
			return &ParseError{Text: k, Reason: "invalid setting keyword"}
		}
		if strings.TrimSpace(v) == "" || strings.TrimSpace(v) != v || strings.ContainsAny(v, "\r\n") {
			return &ParseError{Text: k + " " + v, Reason: "invalid setting value"}
		}
	}
	return nil
}

// Check parses document as UpsertBlock would do for identifier without
// editing it. It returns a *ParseError if the document cannot be edited safely.
func Check(document, identifier string) error {
	_, err := parse(document, identifier)
	return err
}

// UpsertBlock returns document with exactly one "Host identifier" block
// holding exactly settings, in order.
//
// An existing block keeps its position and header line while its settings are
// replaced, and any further block for identifier is removed. Otherwise a new
// block is appended, separated from previous content by a blank line.
// Lines outside the edited blocks are returned byte for byte.
func UpsertBlock(document, identifier string, settings *Settings) (string, error) {
	d, err := parse(document, identifier)
	if err != nil {
		return "", err
	}
	if err = checkSettings(settings); err != nil {
		return "", err
	}
	if len(d.blocks) == 0 {
		return d.appendBlock(document, identifier, settings), nil
	}
	return d.replaceBlocks(settings), nil
}

func (d *document) writeSettings(b *strings.Builder, indent string, settings *Settings) {
	for _, k := range settings.Keys() {
		v, _ := settings.Get(k)
		b.WriteString(indent + k + " " + v + d.eol)
	}
}

func (d *document) appendBlock(document, identifier string, settings *Settings) string {
	var b strings.Builder
	b.WriteString(document)
	if n := len(d.lines); n > 0 {
		last := d.lines[n-1]
		if last.eol == "" {
			b.WriteString(d.eol)
		}
		if strings.TrimSpace(last.text) != "" {
			b.WriteString(d.eol)
		}
	}
	b.WriteString("Host " + identifier + d.eol)
	d.writeSettings(&b, defaultIndent, settings)
	return b.String()
}

func (d *document) indent(blk block) string {
	for _, l := range d.lines[blk.start+1 : blk.end] {
		if !isTrivia(l.text) {
			return l.text[:len(l.text)-len(strings.TrimLeft(l.text, " \t"))]
		}
	}
	return defaultIndent
}

func (d *document) replaceBlocks(settings *Settings) string {
	var b strings.Builder
	first := d.blocks[0]
	next := 0
	for i := 0; i < len(d.lines); {
		if next < len(d.blocks) && i == d.blocks[next].start {
			blk := d.blocks[next]
			next++
			if blk == first {
				header := d.lines[i]
				b.WriteString(header.text)
				if header.eol != "" {
					b.WriteString(header.eol)
				} else {
					b.WriteString(d.eol)
				}
				d.writeSettings(&b, d.indent(blk), settings)
			}
			i = blk.end
			continue
		}
		b.WriteString(d.lines[i].text + d.lines[i].eol)
		i++
	}
	return b.String()
}
