package paths

import (
	"fmt"
	"math"
	"strconv"
)

// Stringify converts a decoded JSON scalar to its string form. Objects and
// arrays do not stringify.
func Stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		// json.Unmarshal decodes all numbers as float64; IDs must not come
		// back as "8e+00".
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", t), true
	}
}
