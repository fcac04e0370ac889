package model

import (
	"fmt"
	"time"
)

// ComposedBlock is one height's output. Exactly one payload matches Kind.
type ComposedBlock struct {
	Kind    DataToFetch   `json:"kind"`
	Raw     *DecodedBlock `json:"raw,omitempty"`
	Indexed *IndexedBlock `json:"indexed,omitempty"`
	Heights *HeightOnly   `json:"heights,omitempty"`
}

func NewRawComposed(b DecodedBlock) ComposedBlock {
	return ComposedBlock{Kind: RawTxs, Raw: &b}
}

func NewIndexedComposed(b IndexedBlock) ComposedBlock {
	return ComposedBlock{Kind: IndexedTxs, Indexed: &b}
}

func NewHeightComposed(h HeightOnly) ComposedBlock {
	return ComposedBlock{Kind: OnlyHeights, Heights: &h}
}

// Height returns the height of whichever payload is set.
func (c ComposedBlock) Height() int64 {
	switch c.Kind {
	case RawTxs:
		if c.Raw != nil {
			return c.Raw.Header.Height
		}
	case IndexedTxs:
		if c.Indexed != nil {
			return c.Indexed.Header.Height
		}
	case OnlyHeights:
		if c.Heights != nil {
			return c.Heights.Height
		}
	}
	return 0
}

// Time returns the block time of whichever payload is set.
func (c ComposedBlock) Time() time.Time {
	switch c.Kind {
	case RawTxs:
		if c.Raw != nil {
			return c.Raw.Header.Time
		}
	case IndexedTxs:
		if c.Indexed != nil {
			return c.Indexed.Header.Time
		}
	case OnlyHeights:
		if c.Heights != nil {
			return c.Heights.Time
		}
	}
	return time.Time{}
}

// Validate checks that the payload matches the discriminant.
func (c ComposedBlock) Validate() error {
	set := 0
	for _, ok := range []bool{c.Raw != nil, c.Indexed != nil, c.Heights != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("composed block must carry exactly one payload, got %d", set)
	}
	switch c.Kind {
	case RawTxs:
		if c.Raw == nil {
			return fmt.Errorf("kind %s without raw payload", c.Kind)
		}
	case IndexedTxs:
		if c.Indexed == nil {
			return fmt.Errorf("kind %s without indexed payload", c.Kind)
		}
	case OnlyHeights:
		if c.Heights == nil {
			return fmt.Errorf("kind %s without heights payload", c.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	return nil
}
