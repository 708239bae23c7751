package stream

import (
	"strconv"
	"strings"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var ErrBadDecimal = errors.New("stream: bad decimal value")

// scaledFromDecimal converts a venue decimal string into the instrument's
// scaled integer representation. Digits beyond the scale are truncated, the
// venue's precision is authoritative only up to the instrument definition.
func scaledFromDecimal(d decimal.Decimal, scale schema.Scale) (int64, error) {
	return scaledFromString(d.String(), scale)
}

func scaledFromString(s string, scale schema.Scale) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrBadDecimal
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if int(scale) < len(fracPart) {
		fracPart = fracPart[:scale]
	}
	for int(scale) > len(fracPart) {
		fracPart += "0"
	}

	v, err := strconv.ParseInt(intPart+fracPart, 10, 64)
	if err != nil {
		return 0, errors.Wrap(ErrBadDecimal, s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// decimalFromScaled renders a scaled integer back into the venue's decimal
// string form for outbound requests.
func decimalFromScaled(v int64, scale schema.Scale) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if scale <= 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	for int(scale)+1 > len(s) {
		s = "0" + s
	}
	cut := len(s) - int(scale)
	out := s[:cut] + "." + s[cut:]
	out = strings.TrimRight(out, "0")
	out = strings.TrimSuffix(out, ".")
	if neg {
		return "-" + out
	}
	return out
}
