//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce converts a record value to the Go representation of t:
// int64 for long/int, float64 for double/float, string, or bool.
// A nil value stays nil.
func Coerce(value interface{}, t Type) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch t {
	case TypeLong, TypeInt:
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		if t == TypeInt && (n < math.MinInt32 || n > math.MaxInt32) {
			return nil, fmt.Errorf("value %d out of range for int", n)
		}
		return n, nil
	case TypeDouble, TypeFloat:
		return toFloat64(value)
	case TypeString:
		return FormatValue(value), nil
	case TypeBoolean:
		return toBool(value)
	default:
		return nil, fmt.Errorf("unsupported target type: %s", t)
	}
}

// FormatValue renders a value the way it is written to text outputs.
// Floats use the shortest representation that round-trips.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toInt64 attempts to convert a value to int64.
func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to long", v)
		}
		return wholeFloat(f)
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return wholeFloat(float64(v))
	case float64:
		return wholeFloat(v)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to long", value)
	}
}

func wholeFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("cannot convert %v to long without losing precision", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("value %v out of range for long", f)
	}
	return int64(f), nil
}

// toFloat64 attempts to convert a value to float64.
func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to double", v)
		}
		return f, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to double", value)
	}
}

// toBool attempts to convert a value to bool.
func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to boolean", v)
		}
		return b, nil
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}
