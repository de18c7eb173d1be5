package roster

import (
	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/model"
)

// TotalStalls is the number of physical stalls at the ranch.
const TotalStalls = 14

// CheckStalls fails on the first assigned stall number outside
// 1..TotalStalls. Unassigned horses pass.
func CheckStalls(horses []model.Horse) error {
	for _, h := range horses {
		if h.StallNumber == nil {
			continue
		}
		if n := *h.StallNumber; n < 1 || n > TotalStalls {
			return apperror.InvalidStall(n, TotalStalls)
		}
	}
	return nil
}

// StallOccupant returns the first horse assigned to stall n.
func StallOccupant(horses []model.Horse, n int) (model.Horse, bool) {
	for _, h := range horses {
		if h.StallNumber != nil && *h.StallNumber == n {
			return h, true
		}
	}
	return model.Horse{}, false
}

// Stalls projects horses onto stalls 1..TotalStalls.
func Stalls(horses []model.Horse) []model.StallAssignment {
	out := make([]model.StallAssignment, 0, TotalStalls)
	for n := 1; n <= TotalStalls; n++ {
		a := model.StallAssignment{Number: n}
		if h, ok := StallOccupant(horses, n); ok {
			a.Horse = &h
		}
		out = append(out, a)
	}
	return out
}

// StallRows splits the stall numbers into the two barn rows, for display.
func StallRows() [2][]int {
	var rows [2][]int
	half := TotalStalls / 2
	for n := 1; n <= TotalStalls; n++ {
		if n <= half {
			rows[0] = append(rows[0], n)
		} else {
			rows[1] = append(rows[1], n)
		}
	}
	return rows
}
