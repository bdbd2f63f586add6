// Package guild provides the guild identity shared by every per-guild component.
package guild

import (
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
)

// ID identifies a Discord guild.
type ID = snowflake.ID

// ParseID parses the decimal string form delivered by the gateway.
func ParseID(s string) (ID, error) {
	id, err := snowflake.Parse(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid guild id %q", s)
	}
	if id == 0 {
		return 0, errors.Newf("invalid guild id %q", s)
	}
	return id, nil
}

// MustParseID is ParseID for constants in tests and fixtures.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}
