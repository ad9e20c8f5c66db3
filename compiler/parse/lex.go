package parse

import (
	"strconv"

	"tlog.app/go/errors"

	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

// skip moves past spaces, tabs and // comments, staying on the line.
func (s *state) skip(i int) int {
	for i < len(s.b) {
		switch s.b[i] {
		case ' ', '\t', '\r':
			i++
		case '/':
			if i+1 < len(s.b) && s.b[i+1] == '/' {
				for i < len(s.b) && s.b[i] != '\n' {
					i++
				}

				continue
			}

			return i
		default:
			return i
		}
	}

	return i
}

// skipNL moves past all whitespace and comments including newlines.
func (s *state) skipNL(i int) int {
	for {
		i = s.skip(i)

		if i < len(s.b) && s.b[i] == '\n' {
			i++
			continue
		}

		return i
	}
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ident scans a keyword, op name or label: letter first, then
// letters, digits, dots.
func (s *state) ident(i int) (string, int) {
	i = s.skip(i)
	st := i

	if i == len(s.b) || !isLetter(s.b[i]) {
		return "", st
	}

	for i < len(s.b) && (isLetter(s.b[i]) || isDigit(s.b[i]) || s.b[i] == '.') {
		i++
	}

	return string(s.b[st:i]), i
}

// valueName scans the name after %% or @. Unlike labels it may start
// with a digit (unnamed results print as %<id>) and may contain $.
func (s *state) valueName(i int) (string, int) {
	st := i

	for i < len(s.b) && (isLetter(s.b[i]) || isDigit(s.b[i]) || s.b[i] == '.' || s.b[i] == '$') {
		i++
	}

	return string(s.b[st:i]), i
}

func (s *state) number(i int) (v int64, _ int, err error) {
	i = s.skip(i)
	st := i

	if i < len(s.b) && s.b[i] == '-' {
		i++
	}

	for i < len(s.b) && isDigit(s.b[i]) {
		i++
	}

	if i == st || s.b[st] == '-' && i == st+1 {
		return 0, st, errors.New("expected number")
	}

	v, err = strconv.ParseInt(string(s.b[st:i]), 10, 64)
	if err != nil {
		return 0, st, errors.Wrap(err, "number")
	}

	return v, i, nil
}

func (s *state) expect(i int, c byte) (int, error) {
	i = s.skip(i)

	if i == len(s.b) || s.b[i] != c {
		return i, errors.New("expected %q", string(c))
	}

	return i + 1, nil
}

func (s *state) looksLikeType(i int) bool {
	i = s.skip(i)

	if i == len(s.b) {
		return false
	}

	switch s.b[i] {
	case '[', '{', '<':
		return true
	case 'i':
		return i+1 < len(s.b) && isDigit(s.b[i+1])
	default:
		return false
	}
}

func (s *state) typ(i int) (_ tp.Type, _ int, err error) {
	i = s.skip(i)

	if i == len(s.b) {
		return nil, i, errors.New("expected type")
	}

	var t tp.Type

	switch c := s.b[i]; {
	case c == 'i':
		w, e := s.ident(i)

		bits, err := strconv.ParseInt(w[1:], 10, 16)
		if err != nil || bits <= 0 || bits > 64 {
			return nil, i, errors.New("bad int type: %v", w)
		}

		t = tp.Int{Bits: int16(bits), Signed: true}
		i = e
	case c == '[' || c == '<':
		closing := byte(']')
		if c == '<' {
			closing = '>'
		}

		n, e, err := s.number(i + 1)
		if err != nil {
			return nil, e, err
		}

		w, e := s.ident(e)
		if w != "x" {
			return nil, e, errors.New("expected x in aggregate type")
		}

		el, e, err := s.typ(e)
		if err != nil {
			return nil, e, err
		}

		e, err = s.expect(e, closing)
		if err != nil {
			return nil, e, err
		}

		if c == '[' {
			t = tp.Array{X: el, Len: int(n)}
		} else {
			t = tp.Vector{X: el, Len: int(n)}
		}

		i = e
	case c == '{':
		var fields []tp.StructField

		i++

		for first := true; ; first = false {
			i = s.skip(i)

			if i < len(s.b) && s.b[i] == '}' {
				i++
				break
			}

			if !first {
				var err error

				i, err = s.expect(i, ',')
				if err != nil {
					return nil, i, err
				}
			}

			el, e, err := s.typ(i)
			if err != nil {
				return nil, e, err
			}

			fields = append(fields, tp.StructField{Type: el})
			i = e
		}

		t = tp.MakeStruct(fields...)
	default:
		return nil, i, errors.New("expected type")
	}

	for i < len(s.b) && s.b[i] == '*' {
		t = tp.Ptr{X: t}
		i++
	}

	return t, i, nil
}
