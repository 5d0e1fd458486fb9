package catalog

import (
	"encoding/json"
	"fmt"
	"math"
)

// Epsilon pads equality bounds so that float noise does not break `x = 3`.
const Epsilon = 0.0001

// FactCompare is an open interval test with an optional negation.
// A value matches when Lower < v < Upper, inverted when Negate is set.
type FactCompare struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Negate bool    `json:"negate,omitempty"`
}

// Matches reports whether v satisfies the comparison.
func (c FactCompare) Matches(v float64) bool {
	return (c.Lower < v && v < c.Upper) != c.Negate
}

// Equal matches values within Epsilon of x.
func Equal(x float64) FactCompare {
	return FactCompare{Lower: x - Epsilon, Upper: x + Epsilon}
}

// NotEqual matches everything Equal(x) does not.
func NotEqual(x float64) FactCompare {
	c := Equal(x)
	c.Negate = true
	return c
}

// Greater matches v > x.
func Greater(x float64) FactCompare {
	return FactCompare{Lower: x, Upper: math.Inf(1)}
}

// GreaterEqual matches v >= x.
func GreaterEqual(x float64) FactCompare {
	return FactCompare{Lower: x - Epsilon, Upper: math.Inf(1)}
}

// Less matches v < x.
func Less(x float64) FactCompare {
	return FactCompare{Lower: math.Inf(-1), Upper: x}
}

// LessEqual matches v <= x.
func LessEqual(x float64) FactCompare {
	return FactCompare{Lower: math.Inf(-1), Upper: x + Epsilon}
}

// Between matches lo < v < hi.
func Between(lo, hi float64) FactCompare {
	return FactCompare{Lower: lo, Upper: hi}
}

// Any matches every finite value.
func Any() FactCompare {
	return FactCompare{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

func (c FactCompare) String() string {
	not := ""
	if c.Negate {
		not = "!"
	}
	return fmt.Sprintf("%s(%g, %g)", not, c.Lower, c.Upper)
}

// compareJSON omits open bounds: JSON has no infinities.
type compareJSON struct {
	Lower  *float64 `json:"lower,omitempty"`
	Upper  *float64 `json:"upper,omitempty"`
	Negate bool     `json:"negate,omitempty"`
}

// MarshalJSON encodes infinite bounds by leaving them out.
func (c FactCompare) MarshalJSON() ([]byte, error) {
	j := compareJSON{Negate: c.Negate}
	if !math.IsInf(c.Lower, -1) {
		lo := c.Lower
		j.Lower = &lo
	}
	if !math.IsInf(c.Upper, 1) {
		hi := c.Upper
		j.Upper = &hi
	}
	return json.Marshal(j)
}

// UnmarshalJSON restores omitted bounds as infinities.
func (c *FactCompare) UnmarshalJSON(b []byte) error {
	var j compareJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*c = FactCompare{Lower: math.Inf(-1), Upper: math.Inf(1), Negate: j.Negate}
	if j.Lower != nil {
		c.Lower = *j.Lower
	}
	if j.Upper != nil {
		c.Upper = *j.Upper
	}
	return nil
}
