package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is a participant's standing inside a conversation. Roles are ordered:
// a higher value grants a superset of the lower one's permissions.
type Role int8

const (
	RoleMember Role = iota + 1
	RoleAdmin
)

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "member":
		return RoleMember, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", int8(r))
}

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// Compare returns -1, 0 or 1.
func (r Role) Compare(other Role) int {
	switch {
	case r < other:
		return -1
	case r > other:
		return 1
	}
	return 0
}

func (r Role) AtLeast(other Role) bool {
	return r.Compare(other) >= 0
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int8(r))
	}
	return r.String(), nil
}

func (r *Role) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
