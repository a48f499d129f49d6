package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a provider-supplied amount into integer minor units.
//
// Numbers are major units and are multiplied by 100. Strings containing a
// decimal point are major units too; bare integer strings are assumed to
// already be minor units. Rounding is always half away from zero, never
// truncation, which would systematically under-count ("19.995" is 2000
// pence, not 1999). Unparseable values become 0.
func ToMinorUnits(value any) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case int:
		return int64(v) * 100
	case int64:
		return v * 100
	case float64:
		return decimal.NewFromFloat(v).Mul(hundred).Round(0).IntPart()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0
		}
		if strings.Contains(s, ".") {
			return d.Mul(hundred).Round(0).IntPart()
		}
		return d.Round(0).IntPart()
	}
	return 0
}
