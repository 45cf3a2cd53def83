package cachestore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

const keyPrefix = "transactions"

type KeyKind string

const (
	KeyAll       KeyKind = "all"
	KeyPaginated KeyKind = "paginated"
)

// Key identifies a cached query. Skip and Take are zero for KeyAll.
type Key struct {
	Kind KeyKind
	Skip int
	Take int
}

func AllKey() Key {
	return Key{Kind: KeyAll}
}

func PaginatedKey(skip, take int) Key {
	return Key{Kind: KeyPaginated, Skip: skip, Take: take}
}

// Params returns the list request that fills the entry.
func (k Key) Params() domain.ListParams {
	if k.Kind == KeyAll {
		return domain.ListParams{}
	}
	return domain.ListParams{Skip: k.Skip, Take: k.Take}
}

func (k Key) String() string {
	if k.Kind == KeyAll {
		return keyPrefix + "/" + string(KeyAll)
	}
	return fmt.Sprintf("%s/%s/%d/%d", keyPrefix, KeyPaginated, k.Skip, k.Take)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] != keyPrefix {
		return Key{}, fmt.Errorf("ParseKey: invalid cache key %q", s)
	}

	switch KeyKind(parts[1]) {
	case KeyAll:
		if len(parts) != 2 {
			return Key{}, fmt.Errorf("ParseKey: invalid cache key %q", s)
		}
		return AllKey(), nil
	case KeyPaginated:
		if len(parts) != 4 {
			return Key{}, fmt.Errorf("ParseKey: invalid cache key %q", s)
		}
		skip, err := strconv.Atoi(parts[2])
		if err != nil || skip < 0 {
			return Key{}, fmt.Errorf("ParseKey: invalid skip in %q", s)
		}
		take, err := strconv.Atoi(parts[3])
		if err != nil || take < 1 {
			return Key{}, fmt.Errorf("ParseKey: invalid take in %q", s)
		}
		return PaginatedKey(skip, take), nil
	default:
		return Key{}, fmt.Errorf("ParseKey: unknown key kind in %q", s)
	}
}
