// Package fees computes the current-month boarding fee snapshot.
package fees

import "time"

// Monthly rates in whole dollars.
const (
	StallRate   = 250 // per boarded horse
	TrailerRate = 50  // flat, when trailer parking is used
	WifiRate    = 50  // total network cost, split across subscribers
)

// Input is the state a snapshot is derived from.
type Input struct {
	HorseCount      int
	UsesTrailer     bool
	UsesWifi        bool
	WifiSubscribers int
}

// Snapshot is one month's fees. It is never stored.
// WifiShare is not rounded; formatting as currency is the caller's job.
type Snapshot struct {
	Rent       int       `json:"rent"`
	TrailerFee int       `json:"trailerFee"`
	WifiShare  float64   `json:"wifiShare"`
	Subtotal   float64   `json:"subtotal"`
	DueDate    time.Time `json:"dueDate"`
}

// Compute derives the fee snapshot for in as of now.
func Compute(in Input, now time.Time) Snapshot {
	s := Snapshot{
		Rent:      in.HorseCount * StallRate,
		WifiShare: WifiShare(in.UsesWifi, in.WifiSubscribers),
		DueDate:   DueDate(now),
	}
	if in.UsesTrailer {
		s.TrailerFee = TrailerRate
	}
	s.Subtotal = float64(s.Rent) + float64(s.TrailerFee) + s.WifiShare
	return s
}

// WifiShare is this subscriber's part of the monthly Wi-Fi cost.
func WifiShare(usesWifi bool, subscribers int) float64 {
	if !usesWifi || subscribers <= 0 {
		return 0
	}
	return float64(WifiRate) / float64(subscribers)
}

// DueDate returns midnight UTC on the first day of the month after now.
// Only the UTC calendar date of now matters.
func DueDate(now time.Time) time.Time {
	u := now.UTC()
	// time.Date normalises month 13 into January of the next year.
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// AvailableStalls is the fallback count of free stalls when the backend
// has no settings row: total minus the user's own horses, never negative.
func AvailableStalls(total, horseCount int) int {
	return max(0, total-horseCount)
}
