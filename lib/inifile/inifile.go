// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package inifile reads and rewrites INI files without disturbing the
// bytes it does not own.
//
// The terminal writes its own configuration files and reads them back;
// termgate edits a handful of keys in place. A round-trip through a
// generic INI serializer would reorder keys, normalize spacing, and
// drop comments, changes the terminal may or may not tolerate, and
// changes that make "did the injector actually modify anything"
// impossible to answer. This package instead keeps every line verbatim
// and rewrites only the lines whose values actually change, so applying
// the same configuration twice is byte-for-byte idempotent.
//
// Lookups are case-insensitive; original casing is preserved. Only the
// first occurrence of a key within a section is read or rewritten,
// matching how the terminal resolves duplicates.
package inifile

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// utf8BOM is preserved verbatim when present so a rewrite never
// changes how an editor or the terminal sniffs the file.
const utf8BOM = "\xef\xbb\xbf"

// line is one physical line: its content and its own terminator. The
// final line of an unterminated file has an empty eol.
type line struct {
	text string
	eol  string
}

// Document is a parsed INI file that can be rewritten in place.
type Document struct {
	bom   string
	lines []line

	// eol is the dominant line terminator, used for inserted lines.
	eol string
}

// Load reads and parses the INI file at path. The returned error wraps
// fs.ErrNotExist when the file is missing, so callers can distinguish
// absent files (skippable) from unreadable ones.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data), nil
}

// Parse parses INI data. Parse never fails: lines that are not section
// headers or key=value pairs (comments, blanks, anything else) are
// carried through untouched.
func Parse(data []byte) *Document {
	document := &Document{}

	text := string(data)
	if strings.HasPrefix(text, utf8BOM) {
		document.bom = utf8BOM
		text = text[len(utf8BOM):]
	}

	crlf := 0
	bareLF := 0
	for len(text) > 0 {
		index := strings.IndexByte(text, '\n')
		if index < 0 {
			document.lines = append(document.lines, line{text: text})
			break
		}
		content, eol := text[:index], "\n"
		if strings.HasSuffix(content, "\r") {
			content, eol = content[:len(content)-1], "\r\n"
			crlf++
		} else {
			bareLF++
		}
		document.lines = append(document.lines, line{text: content, eol: eol})
		text = text[index+1:]
	}

	if crlf >= bareLF && crlf > 0 {
		document.eol = "\r\n"
	} else {
		document.eol = "\n"
	}
	return document
}

// Render serializes the document. A document that was parsed and not
// modified renders to the exact input bytes.
func (d *Document) Render() []byte {
	var buffer bytes.Buffer
	buffer.WriteString(d.bom)
	for _, l := range d.lines {
		buffer.WriteString(l.text)
		buffer.WriteString(l.eol)
	}
	return buffer.Bytes()
}

// Value returns the trimmed value of the first occurrence of key in
// section, and whether it was found.
func (d *Document) Value(section, key string) (string, bool) {
	start, end, found := d.sectionSpan(section)
	if !found {
		return "", false
	}
	for i := start + 1; i < end; i++ {
		if k, v, ok := splitKeyValue(d.lines[i].text); ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Set writes key=value into section and reports whether the document
// changed. A key already holding the value is left byte-identical. A
// differing value rewrites that one line as "key=value", keeping the
// original key casing. A missing key is inserted at the end of its
// section; a missing section is appended to the document.
func (d *Document) Set(section, key, value string) bool {
	start, end, found := d.sectionSpan(section)
	if !found {
		d.appendSection(section, key, value)
		return true
	}

	for i := start + 1; i < end; i++ {
		k, v, ok := splitKeyValue(d.lines[i].text)
		if !ok || !strings.EqualFold(k, key) {
			continue
		}
		if v == value {
			return false
		}
		d.lines[i].text = k + "=" + value
		return true
	}

	d.insertLine(d.insertionPoint(start+1, end), key+"="+value)
	return true
}

// sectionSpan returns the index of the section header line and the
// index one past the section's last line.
func (d *Document) sectionSpan(section string) (start, end int, found bool) {
	for i, l := range d.lines {
		name, ok := sectionName(l.text)
		if !ok {
			continue
		}
		if found {
			return start, i, true
		}
		if strings.EqualFold(name, section) {
			start = i
			found = true
		}
	}
	if found {
		return start, len(d.lines), true
	}
	return 0, 0, false
}

// insertionPoint finds where a new key line belongs within the span
// [from, to): after the last non-blank line, so trailing blank
// separators stay at the section boundary.
func (d *Document) insertionPoint(from, to int) int {
	point := to
	for point > from && strings.TrimSpace(d.lines[point-1].text) == "" {
		point--
	}
	return point
}

// insertLine inserts a new terminated line at index, repairing the
// terminator of a previously-final unterminated line.
func (d *Document) insertLine(index int, text string) {
	if index > 0 && d.lines[index-1].eol == "" {
		d.lines[index-1].eol = d.eol
	}
	d.lines = append(d.lines, line{})
	copy(d.lines[index+1:], d.lines[index:])
	d.lines[index] = line{text: text, eol: d.eol}
}

// appendSection appends "[section]" and one key line at the end of the
// document, preceded by a blank separator when the document has
// content.
func (d *Document) appendSection(section, key, value string) {
	if last := len(d.lines) - 1; last >= 0 {
		if d.lines[last].eol == "" {
			d.lines[last].eol = d.eol
		}
		if strings.TrimSpace(d.lines[last].text) != "" {
			d.lines = append(d.lines, line{text: "", eol: d.eol})
		}
	}
	d.lines = append(d.lines,
		line{text: "[" + section + "]", eol: d.eol},
		line{text: key + "=" + value, eol: d.eol},
	)
}

// sectionName extracts the name from a "[Name]" header line.
func sectionName(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return "", false
	}
	return strings.TrimSpace(trimmed[1 : len(trimmed)-1]), true
}

// splitKeyValue splits a "key=value" line. Comment lines (';' or '#')
// and lines without '=' are not key lines.
func splitKeyValue(text string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed[0] == ';' || trimmed[0] == '#' || trimmed[0] == '[' {
		return "", "", false
	}
	k, v, found := strings.Cut(trimmed, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(k)
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(v), true
}
