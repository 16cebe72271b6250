package model

import "time"

// Profile is the user data used to fill portal forms.
type Profile struct {
	UserID          string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Location        string
	LinkedInURL     string
	WebsiteURL      string
	ResumePath      string
	CoverLetterPath string
	WorkHistory     []WorkExperience
	Education       []Education
	Skills          []string
	// Answers are the stored question bank answers indexed by question key.
	Answers map[string]string
}

// WorkExperience is a single work history entry.
type WorkExperience struct {
	Company     string
	Title       string
	Location    string
	StartDate   string
	EndDate     string
	Current     bool
	Description string
}

// Education is a single education entry.
type Education struct {
	Institution string
	Degree      string
	Field       string
	StartDate   string
	EndDate     string
}

// QuestionAnswer is a question bank entry of a user.
type QuestionAnswer struct {
	UserID    string
	Key       string
	Question  string
	Answer    string
	Category  string
	UpdatedAt time.Time
}

// FieldValue is a resolved form field value. Kind selects which payload is set:
// Text for text fields, Date for date fields, File for file fields, Choice for
// select fields and Answer for custom questions.
type FieldValue struct {
	FieldID string
	Kind    FieldKind
	Text    string
	Date    time.Time
	File    string
	Choice  string
	Answer  string
}
