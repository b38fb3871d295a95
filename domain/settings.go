package domain

// Settings is the singleton pharmacy profile, created with defaults on
// first run and updated in place afterwards.
type Settings struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	GSTIN   string `json:"gstin"`
}

// DefaultSettings returns the profile written on first run.
func DefaultSettings() Settings {
	return Settings{
		Name:    "Gemini Pharmacy",
		Address: "123 Health St, Wellness City",
		Phone:   "555-123-4567",
		GSTIN:   "ABCDE12345",
	}
}
