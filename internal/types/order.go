// Package types provides the common data types for the batchpress system.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOrder is returned when an order fails ingestion validation.
var ErrInvalidOrder = errors.New("invalid order")

// PrintMode is the printing process an order requires. It is the primary
// grouping key for normal-priority orders.
type PrintMode string

const (
	// PrintModeColor indicates full-color printing.
	PrintModeColor PrintMode = "color"

	// PrintModeMono indicates monochrome printing.
	PrintModeMono PrintMode = "monochrome"
)

// Valid reports whether the print mode is one of the closed set of modes.
func (m PrintMode) Valid() bool {
	switch m {
	case PrintModeColor, PrintModeMono:
		return true
	}
	return false
}

// PaperType is the paper stock an order is printed on. Paper type is recorded
// on batches but never used as a grouping key.
type PaperType string

const (
	// PaperPlain is standard uncoated stock.
	PaperPlain PaperType = "plain"

	// PaperCoated is coated stock for high-quality color work.
	PaperCoated PaperType = "coated"

	// PaperRecycled is recycled stock.
	PaperRecycled PaperType = "recycled"
)

// Valid reports whether the paper type is one of the closed set of stocks.
func (p PaperType) Valid() bool {
	switch p {
	case PaperPlain, PaperCoated, PaperRecycled:
		return true
	}
	return false
}

// MachineClass is the class of press an order runs on. Like paper type it is
// carried through for display but does not participate in batching.
type MachineClass string

const (
	// MachineRoll is a roll-fed (web) press.
	MachineRoll MachineClass = "roll"

	// MachineSheet is a sheet-fed press.
	MachineSheet MachineClass = "sheet"
)

// Valid reports whether the machine class is one of the closed set of classes.
func (c MachineClass) Valid() bool {
	switch c {
	case MachineRoll, MachineSheet:
		return true
	}
	return false
}

// Order is one customer print job. Orders are created by the ingestion layer
// and treated as immutable input by the planner.
type Order struct {
	// ID uniquely identifies the order.
	ID string `json:"id"`

	// PrintMode is the required printing process.
	PrintMode PrintMode `json:"print_mode"`

	// PaperType is the required paper stock.
	PaperType PaperType `json:"paper_type"`

	// MachineClass is the press class the job runs on.
	MachineClass MachineClass `json:"machine_class"`

	// Quantity is the number of units to print. Must be positive.
	Quantity int `json:"quantity"`

	// Priority marks urgency: 0 is normal, anything above the configured
	// threshold is urgent. Urgent values are not otherwise ranked.
	Priority int `json:"priority"`

	// Deadline is when the customer expects delivery. Informational only;
	// the batching policy never reorders by deadline.
	Deadline time.Time `json:"deadline"`
}

// Validate checks the order against ingestion rules. It returns an error
// wrapping ErrInvalidOrder when the quantity is not positive or any of the
// closed enumerations carries an unknown value. The planner itself never
// validates; callers are expected to reject bad orders before batching.
func (o Order) Validate() error {
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: order %s has non-positive quantity %d", ErrInvalidOrder, o.ID, o.Quantity)
	}
	if !o.PrintMode.Valid() {
		return fmt.Errorf("%w: order %s has unknown print mode %q", ErrInvalidOrder, o.ID, o.PrintMode)
	}
	if !o.PaperType.Valid() {
		return fmt.Errorf("%w: order %s has unknown paper type %q", ErrInvalidOrder, o.ID, o.PaperType)
	}
	if !o.MachineClass.Valid() {
		return fmt.Errorf("%w: order %s has unknown machine class %q", ErrInvalidOrder, o.ID, o.MachineClass)
	}
	return nil
}

// Urgent reports whether the order's priority exceeds the given threshold.
func (o Order) Urgent(threshold int) bool {
	return o.Priority > threshold
}

// MarshalBinary converts the Order to a binary format (JSON).
// This implements the encoding.BinaryMarshaler interface.
func (o Order) MarshalBinary() ([]byte, error) {
	return json.Marshal(o)
}

// UnmarshalBinary parses the JSON-encoded data and stores the result in the
// Order. This implements the encoding.BinaryUnmarshaler interface.
func (o *Order) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, o)
}
