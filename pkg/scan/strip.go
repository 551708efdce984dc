package scan

import "strings"

// stripCommentsAndStrings blanks out comment and string-literal spans so
// the extraction regexes cannot match inside them. Stripping happens
// before any pattern matching; a crate named only in a comment or a
// string produces no reference.
//
// Handled spans: // line comments, nested /* */ block comments, "..."
// strings with escapes, raw strings r"..." / r#"..."# with any hash
// depth (plus b/br byte variants), and character literals. Lifetimes
// ('a) are left alone: a quote followed by an identifier with no closing
// quote is not a char literal.
//
// Stripped bytes are replaced with spaces; newlines are preserved so the
// output keeps the original line structure.
func stripCommentsAndStrings(src string) string {
	out := []byte(src)
	i := 0
	n := len(src)

	blank := func(from, to int) {
		for k := from; k < to && k < n; k++ {
			if out[k] != '\n' {
				out[k] = ' '
			}
		}
	}

	for i < n {
		c := src[i]

		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = n - i
			}
			blank(i, i+end)
			i += end

		case c == '/' && i+1 < n && src[i+1] == '*':
			end := skipBlockComment(src, i)
			blank(i, end)
			i = end

		case isRawStringStart(src, i):
			end := skipRawString(src, i)
			blank(i, end)
			i = end

		case c == '"' || (c == 'b' && i+1 < n && src[i+1] == '"'):
			start := i
			if c == 'b' {
				i++
			}
			end := skipString(src, i)
			blank(start, end)
			i = end

		case c == '\'':
			if end, ok := charLiteralEnd(src, i); ok {
				blank(i, end)
				i = end
			} else {
				i++ // lifetime, leave it
			}

		default:
			i++
		}
	}

	return string(out)
}

// skipBlockComment returns the index just past a (possibly nested) block
// comment starting at i.
func skipBlockComment(src string, i int) int {
	n := len(src)
	depth := 0
	for i < n {
		if i+1 < n && src[i] == '/' && src[i+1] == '*' {
			depth++
			i += 2
			continue
		}
		if i+1 < n && src[i] == '*' && src[i+1] == '/' {
			depth--
			i += 2
			if depth == 0 {
				return i
			}
			continue
		}
		i++
	}
	return n
}

// skipString returns the index just past a normal string literal whose
// opening quote is at i.
func skipString(src string, i int) int {
	n := len(src)
	i++ // opening quote
	for i < n {
		switch src[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return n
}

// isRawStringStart reports whether a raw string (r"...", r#"..."#, br#...)
// begins at i.
func isRawStringStart(src string, i int) bool {
	n := len(src)
	if src[i] == 'b' && i+1 < n && src[i+1] == 'r' {
		i++
	}
	if src[i] != 'r' || i+1 >= n {
		return false
	}
	j := i + 1
	for j < n && src[j] == '#' {
		j++
	}
	return j < n && src[j] == '"'
}

// skipRawString returns the index just past a raw string starting at i.
func skipRawString(src string, i int) int {
	n := len(src)
	if src[i] == 'b' {
		i++
	}
	i++ // 'r'
	hashes := 0
	for i < n && src[i] == '#' {
		hashes++
		i++
	}
	i++ // opening quote
	closer := `"` + strings.Repeat("#", hashes)
	end := strings.Index(src[i:], closer)
	if end < 0 {
		return n
	}
	return i + end + len(closer)
}

// charLiteralEnd distinguishes a char literal from a lifetime. A char
// literal is short and closed by a quote ('x', '\n', '\u{1F600}'); a
// lifetime is a quote followed by an identifier with no closing quote.
func charLiteralEnd(src string, i int) (int, bool) {
	n := len(src)
	j := i + 1
	if j >= n {
		return 0, false
	}
	if src[j] == '\\' {
		// Escaped char: scan to the closing quote within a short window.
		for k := j + 1; k < n && k < j+12; k++ {
			if src[k] == '\'' {
				return k + 1, true
			}
		}
		return 0, false
	}
	if j+1 < n && src[j+1] == '\'' {
		return j + 2, true
	}
	return 0, false
}
