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
	"strings"
)

// Package schema describes column types as declared in the data catalog and
// in mapping tables, and converts record values between them.

// Type is a catalog column type.
type Type string

const (
	TypeLong    Type = "long"
	TypeInt     Type = "int"
	TypeDouble  Type = "double"
	TypeFloat   Type = "float"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
)

// ParseType normalizes a catalog type name. Hive and Glue synonyms are
// accepted so that columns read from the catalog line up with mapping tables.
func ParseType(s string) (Type, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "long", "bigint":
		return TypeLong, nil
	case "int", "integer", "smallint", "tinyint":
		return TypeInt, nil
	case "double", "decimal", "numeric":
		return TypeDouble, nil
	case "float", "real":
		return TypeFloat, nil
	case "string", "varchar", "char", "text":
		return TypeString, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	}
	if strings.HasPrefix(t, "decimal(") {
		return TypeDouble, nil
	}
	if strings.HasPrefix(t, "varchar(") || strings.HasPrefix(t, "char(") {
		return TypeString, nil
	}
	return "", fmt.Errorf("unknown column type %q", s)
}

// MustParseType is like ParseType but panics on unknown types.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Numeric reports whether values of t are numbers.
func (t Type) Numeric() bool {
	switch t {
	case TypeLong, TypeInt, TypeDouble, TypeFloat:
		return true
	}
	return false
}

// Column is a named, typed column.
type Column struct {
	Name string `yaml:"name" json:"name"`
	Type Type   `yaml:"type" json:"type"`
}

// Schema is an ordered list of columns.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the column with the given name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// UnquoteName strips the back-tick escaping used for column names that
// contain special characters, e.g. "`description(output)`".
func UnquoteName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, "`") && strings.HasSuffix(name, "`") {
		return strings.ReplaceAll(name[1:len(name)-1], "``", "`")
	}
	return name
}
