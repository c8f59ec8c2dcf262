package types

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyContent             = errors.New("types: content must not be empty")
	ErrNegativeAccessCount      = errors.New("types: access_count must be >= 0")
	ErrArchivedWithoutTimestamp = errors.New("types: is_archived requires archived_at to be set")
	ErrSelfLink                 = errors.New("types: link source_id and target_id must differ")
)

// InvalidMemoryTypeError reports a memory_type outside the closed set.
type InvalidMemoryTypeError struct {
	MemoryType MemoryType
}

func (e *InvalidMemoryTypeError) Error() string {
	return fmt.Sprintf("types: invalid memory_type %q", e.MemoryType)
}

// InvalidLinkTypeError reports a link_type outside the closed set.
type InvalidLinkTypeError struct {
	LinkType LinkType
}

func (e *InvalidLinkTypeError) Error() string {
	return fmt.Sprintf("types: invalid link_type %q", e.LinkType)
}
