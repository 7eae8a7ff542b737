package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexInt decodes a JSON number, a numeric string, or null. Upstream
// payloads are not consistent about quoting sizes.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	v, err := decodeNumber(data)
	if err != nil {
		return err
	}
	if v != math.Trunc(v) {
		return fmt.Errorf("expected integer, got %v", v)
	}
	*f = FlexInt(v)
	return nil
}

// FlexFloat is the floating point counterpart of FlexInt.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	v, err := decodeNumber(data)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

func decodeNumber(data []byte) (float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, err
	}
	return n.Float64()
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BytesToMB converts bytes to mebibytes rounded to two decimals.
func BytesToMB(n int64) float64 {
	return Round2(float64(n) / (1 << 20))
}
