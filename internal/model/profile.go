package model

// Profile holds the self-reported details shown on the profile page.
// There is at most one per username; saving replaces it whole.
type Profile struct {
	Username    string   `json:"username"`
	FullName    string   `json:"fullName"`
	Age         int      `json:"age"`
	School      string   `json:"school"`
	Grade       string   `json:"grade"`
	Stream      string   `json:"stream"`
	ContactInfo string   `json:"contactInfo"`
	Address     string   `json:"address"`
	Subjects    []string `json:"subjects"`

	// SubjectCount is derived from Subjects on read; it is never stored.
	SubjectCount int `json:"subjectCount"`
}
