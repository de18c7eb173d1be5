package model

// BoardingPreferences is the per-user state the boarding screens work from.
//
// UserID is empty until a profile row has been decoded. HorseCount is
// derived from the roster size and is never loaded from the backend.
// WifiSubscriberCount is always >= 1 so the Wi-Fi share never divides by zero.
type BoardingPreferences struct {
	UserID              string `json:"userId"`
	Email               string `json:"email"`
	HorseCount          int    `json:"horseCount"`
	UsesTrailer         bool   `json:"usesTrailer"`
	UsesWifi            bool   `json:"usesWifi"`
	WifiSubscriberCount int    `json:"wifiSubscriberCount"`
	AvailableStalls     int    `json:"availableStalls"`
}

// ProfileRow is the decoded shape of a `user_profiles` row.
type ProfileRow struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	UsesWifi    bool   `json:"uses_wifi"`
	UsesTrailer bool   `json:"uses_trailer"`
}

// SettingsRow is the decoded shape of the single `settings` row.
type SettingsRow struct {
	AvailableStalls int `json:"available_stalls"`
}
