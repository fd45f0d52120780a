package domain

// ChangeFloorCount returns a new floor stack with newCount floors (clamped to
// [MinFloors, MaxFloors]). The input is never modified.
//
// Each decrement drops the topmost floor (index 0). Each increment pushes a
// new inherit-color floor on top. Colors stay attached to the floor they were
// set on, but ids are renumbered 0..n-1 so index 0 is always the top, which
// means a floor id obtained before a count change is stale afterwards.
func ChangeFloorCount(floors []Floor, newCount int) []Floor {
	newCount = ClampFloorCount(newCount)
	out := cloneFloors(floors)
	for len(out) > newCount {
		out = out[1:]
	}
	for len(out) < newCount {
		out = append([]Floor{{Color: ""}}, out...)
	}
	return renumber(out)
}

// RecolorFloor returns a copy of floors with the color of the floor whose id
// is floorID replaced. An empty color restores inheritance from the house.
// Unknown ids leave the copy unchanged.
func RecolorFloor(floors []Floor, floorID int, color string) []Floor {
	out := cloneFloors(floors)
	for i := range out {
		if out[i].ID == floorID {
			out[i].Color = color
		}
	}
	return out
}

func renumber(floors []Floor) []Floor {
	for i := range floors {
		floors[i].ID = i
	}
	return floors
}

func cloneFloors(in []Floor) []Floor {
	if in == nil {
		return nil
	}
	out := make([]Floor, len(in))
	copy(out, in)
	return out
}
