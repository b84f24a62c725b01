package libc

import (
	"reflect"
	"strconv"
	"strings"
)

// Sprintf is the formatter programs use instead of fmt.  It knows %d, %x,
// %s, %v and %%, each with an optional width; a leading 0 pads numbers with
// zeros and a leading - left justifies.  Problems are reported inline.
func Sprintf(format string, values ...interface{}) string {
	current := 0 //which param
	i := 0
	var result strings.Builder
	for i < len(format) {
		if format[i] != '%' {
			result.WriteByte(format[i])
			i++
			continue
		}
		if i == len(format)-1 {
			result.WriteString("!format string ended with %")
			return result.String()
		}
		// %% case
		if format[i+1] == '%' {
			result.WriteByte('%')
			i += 2
			continue
		}
		if len(values) <= current {
			result.WriteString("!missing value")
			return result.String()
		}
		ch, size, ok := snarfSpecifier(format, i+1)
		if !ok {
			result.WriteString("!unterminated % specifier")
			return result.String()
		}
		result.WriteString(printType(ch, values[current], size))
		current++
		i += 2 + len(size) //% + width + verb
	}
	return result.String()
}

func printType(ch uint8, value interface{}, sz string) string {
	v := reflect.ValueOf(value)
	switch ch {
	case 'd', 'x':
		base := 16
		if ch == 'd' {
			base = 10
		}
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return formatString(ch, strconv.FormatInt(v.Int(), base), sz)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return formatString(ch, strconv.FormatUint(v.Uint(), base), sz)
		}
	case 's':
		if v.Kind() == reflect.String {
			return formatString(ch, v.String(), sz)
		}
	case 'v':
		switch v.Kind() {
		case reflect.String:
			return formatString('v', v.String(), sz)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return formatString('v', strconv.FormatInt(v.Int(), 10), sz)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return formatString('v', strconv.FormatUint(v.Uint(), 16), sz)
		}
	default:
		return "!unknown control char " + string(ch) + "!"
	}
	return "!mismatched type %" + string(ch) + "!"
}

func stringWithSize(s string, size int) string {
	pos := size
	if pos < 0 {
		pos = -pos
	}
	if len(s) >= pos {
		return s
	}
	pad := strings.Repeat(" ", pos-len(s))
	if size < 0 {
		return s + pad
	}
	return pad + s
}

func formatString(ch uint8, s string, raw string) string {
	leadingZeros := false
	var sz int64
	if raw != "" {
		if raw[0] == '0' {
			leadingZeros = true
		}
		if raw[0] == '-' && len(raw) > 1 && raw[1] == '0' {
			leadingZeros = true
		}
		var err error
		sz, err = strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return "!bad size spec " + raw + "!"
		}
	}

	switch ch {
	case 's', 'v':
		return stringWithSize(s, int(sz))
	case 'd', 'x':
		pos := int(sz)
		if pos < 0 {
			pos = -pos
		}
		if leadingZeros {
			if s[0] != '-' {
				s = strings.Repeat("0", max0(pos-len(s))) + s
			} else {
				s = "-" + strings.Repeat("0", max0(pos-len(s))) + s[1:]
			}
		}
		return stringWithSize(s, int(sz))
	}
	return "!unknown control char " + string(ch) + "!"
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func snarfSpecifier(s string, start int) (uint8, string, bool) {
	qualifier := ""
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '-':
			qualifier += string(s[i])
		case 'd', 's', 'x', 'v':
			return s[i], qualifier, true
		default:
			return '?', qualifier, true
		}
	}
	return 0, qualifier, false
}
