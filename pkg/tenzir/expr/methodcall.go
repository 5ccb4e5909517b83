// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package expr

// normalizeMethodCalls rewrites `a.b.f(args)` into `f(a.b, args)` for every
// dotted chain whose last segment names a registered function, leaving
// everything else (string literals, plain field paths, already-plain
// function calls) untouched. It is a single character scan that tracks
// quoting so dots inside string literals are never mistaken for a chain.
func normalizeMethodCalls(source string, reg *Registry) string {
	runes := []rune(source)
	n := len(runes)
	var out []rune
	i := 0
	for i < n {
		c := runes[i]
		if c == '"' || c == '\'' {
			quote := c
			out = append(out, c)
			i++
			for i < n {
				out = append(out, runes[i])
				if runes[i] == quote && runes[i-1] != '\\' {
					i++
					break
				}
				i++
			}
			continue
		}
		if isIdentStart(c) {
			segStart := i
			segs := [][2]int{}
			i = consumeIdent(runes, i)
			segs = append(segs, [2]int{segStart, i})
			for i < n && runes[i] == '.' && i+1 < n && isIdentStart(runes[i+1]) {
				dotPos := i
				segStart = i + 1
				i = consumeIdent(runes, segStart)
				segs = append(segs, [2]int{segStart, i})
				_ = dotPos
			}
			j := i
			for j < n && (runes[j] == ' ' || runes[j] == '\t') {
				j++
			}
			last := segs[len(segs)-1]
			method := string(runes[last[0]:last[1]])
			if len(segs) >= 2 && j < n && runes[j] == '(' && reg.hasFunction(method) {
				receiverEnd := segs[len(segs)-2][1]
				receiver := string(runes[segs[0][0]:receiverEnd])
				out = append(out, []rune(method)...)
				out = append(out, '(')
				out = append(out, []rune(receiver)...)
				argStart := j + 1
				k := argStart
				for k < n && (runes[k] == ' ' || runes[k] == '\t') {
					k++
				}
				if k < n && runes[k] == ')' {
					out = append(out, ')')
					i = k + 1
				} else {
					out = append(out, ',', ' ')
					i = argStart
				}
				continue
			}
			out = append(out, runes[segs[0][0]:i]...)
			continue
		}
		out = append(out, c)
		i++
	}
	return string(out)
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func consumeIdent(runes []rune, i int) int {
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return i
}
