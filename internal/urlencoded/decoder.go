package urlencoded

import (
	"strings"

	"github.com/indigo-web/tinyweb/http/status"
	"github.com/indigo-web/tinyweb/internal/hexconv"
	"github.com/indigo-web/utils/uf"
)

// Decode decodes percent-escapes and pluses (as spaces) of src into dst. If src contains
// nothing to be decoded, it is returned as is and dst stays untouched.
func Decode(src, dst []byte) (decoded, buffer []byte, err error) {
	dsthead := len(dst)
	modified := false

loop:
	for i, c := range src {
		switch c {
		case '+':
			modified = true
			dst = append(dst, src[:i]...)
			dst = append(dst, ' ')
			src = src[i+1:]
			goto loop
		case '%':
			modified = true

			if len(src)-i < 3 {
				return nil, dst, status.ErrURLDecoding
			}

			char, ok := hexconv.Decode(src[i+1], src[i+2])
			if !ok {
				return nil, dst, status.ErrURLDecoding
			}

			dst = append(dst, src[:i]...)
			dst = append(dst, char)
			src = src[i+3:]
			goto loop
		}
	}

	if !modified {
		return src, dst, nil
	}

	dst = append(dst, src...)
	return dst[dsthead:], dst, nil
}

// ParseForm parses an application/x-www-form-urlencoded body into the map. Pairs are
// separated by '&', key and value by the first '='. A pair without '=' is stored with
// an empty value, empty pairs are skipped. Repeating keys are overwritten.
func ParseForm(body string, into map[string]string) error {
	buff := make([]byte, 0, len(body))

	for len(body) > 0 {
		var pair string
		pair, body, _ = strings.Cut(body, "&")
		if len(pair) == 0 {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(pair, "=")

		var (
			decoded []byte
			err     error
		)

		decoded, buff, err = Decode(uf.S2B(rawKey), buff[:0])
		if err != nil {
			return err
		}

		// the value is decoded into the same buffer, so the key must be copied first
		key := string(decoded)

		decoded, buff, err = Decode(uf.S2B(rawValue), buff[:0])
		if err != nil {
			return err
		}

		into[key] = string(decoded)
	}

	return nil
}
