// Package domain defines the house and floor entities composed into a city,
// together with the pure rules that keep their derived attributes consistent.
package domain

// Status is the transient visual lifecycle state of a house.
type Status string

// Lifecycle states. A house is created Added, settles to Default and moves to
// Removed when deletion is requested, shortly before it is purged.
const (
	StatusAdded   Status = "added"
	StatusDefault Status = "default"
	StatusRemoved Status = "removed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusAdded, StatusDefault, StatusRemoved:
		return true
	}
	return false
}

const (
	// MinFloors is the smallest number of floors a house may have.
	MinFloors = 1
	// MaxFloors is the largest number of floors a house may have.
	MaxFloors = 12
	// FloorHeight is the rendered height of one floor; the roof takes one more.
	FloorHeight = 50

	// DefaultName is given to every newly built house.
	DefaultName = "House Default name"
	// DefaultColor is the palette key given to every newly built house.
	DefaultColor = "Orange"
)

// Floor is one segment of a house's stack. An empty Color inherits the house color.
//
// ID is positional: 0 is the topmost floor. It is only valid until the next
// change of the floor count, after which floors are renumbered.
type Floor struct {
	ID    int    `json:"id"`
	Color string `json:"color"`
}

// House is a composable entity with a stack of floors and a base color.
// Height is derived from the floor count and is never trusted from callers.
type House struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Floors []Floor `json:"floors"`
	Height int     `json:"height"`
	Status Status  `json:"status,omitempty"`
}

// NewHouse returns a freshly built single-floor house with the given id.
func NewHouse(id string) House {
	floors := []Floor{{ID: 0, Color: ""}}
	return House{
		ID:     id,
		Name:   DefaultName,
		Color:  DefaultColor,
		Floors: floors,
		Height: DeriveHeight(len(floors)),
		Status: StatusAdded,
	}
}

// Clone returns a deep copy that shares no memory with h.
func (h House) Clone() House {
	cp := h
	cp.Floors = cloneFloors(h.Floors)
	return cp
}

// Normalize makes a house read from a foreign source satisfy the entity
// invariants: the floor list is brought into range (missing floors are added
// on top, surplus floors are dropped from the top), floor ids are renumbered
// and the height is recomputed. Unknown statuses are reset to Default.
func (h House) Normalize() House {
	cp := h.Clone()
	switch {
	case len(cp.Floors) < MinFloors:
		cp.Floors = ChangeFloorCount(cp.Floors, MinFloors)
	case len(cp.Floors) > MaxFloors:
		cp.Floors = cp.Floors[len(cp.Floors)-MaxFloors:]
	}
	cp.Floors = renumber(cp.Floors)
	cp.Height = DeriveHeight(len(cp.Floors))
	if !cp.Status.Valid() {
		cp.Status = StatusDefault
	}
	return cp
}

// DeriveHeight returns the rendered height of a house with floorCount floors.
func DeriveHeight(floorCount int) int {
	return (floorCount + 1) * FloorHeight
}

// ClampFloorCount coerces n into [MinFloors, MaxFloors].
func ClampFloorCount(n int) int {
	if n < MinFloors {
		return MinFloors
	}
	if n > MaxFloors {
		return MaxFloors
	}
	return n
}
