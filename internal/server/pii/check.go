package pii

import (
	"fmt"

	"github.com/dstepanovs/teamplan/internal/common"
)

// CheckFieldSpecs verifies the declared tables against the store schema at
// startup: every kind must map to a known record shape and every encrypted
// field must be one of its columns. This turns a typo in the tables above
// into a fatal configuration error instead of a silent plaintext write.
func CheckFieldSpecs(schema map[Kind][]string) error {
	columnsOf := make(map[Kind]map[string]struct{}, len(schema))
	for kind, columns := range schema {
		set := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			set[col] = struct{}{}
		}
		columnsOf[kind] = set
	}

	for kind, fields := range encryptedFields {
		columns, ok := columnsOf[kind]
		if !ok {
			return fmt.Errorf("%w: kind %q has no schema", common.ErrConfiguration, kind)
		}
		for _, field := range fields {
			if _, ok := columns[field]; !ok {
				return fmt.Errorf("%w: encrypted field %s.%s is not a schema column", common.ErrConfiguration, kind, field)
			}
		}
	}

	for kind, rels := range relations {
		if _, ok := columnsOf[kind]; !ok {
			return fmt.Errorf("%w: kind %q has no schema", common.ErrConfiguration, kind)
		}
		for _, rel := range rels {
			if _, ok := encryptedFields[rel.Kind]; !ok {
				return fmt.Errorf("%w: relation %s.%s points at undeclared kind %q", common.ErrConfiguration, kind, rel.Key, rel.Kind)
			}
		}
	}

	return nil
}
