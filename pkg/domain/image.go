package domain

import (
	"strconv"
	"time"
)

// Image is a decoded image as reported by the rendering engine.
type Image struct {
	ID      string       `json:"id"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Patient *PatientInfo `json:"patient,omitempty"`
}

// PatientInfo is demographic metadata carried by the image container.
// BirthDate uses the YYYYMMDD form of the container format.
type PatientInfo struct {
	Name      string `json:"name" yaml:"name"`
	BirthDate string `json:"birth_date" yaml:"birth_date"`
	Sex       string `json:"sex" yaml:"sex"`
}

// Age approximates the patient's age as the difference between now's year
// and the birth year. It returns 0 when the birth year is unknown.
func (p PatientInfo) Age(now time.Time) int {
	if len(p.BirthDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(p.BirthDate[:4])
	if err != nil || year <= 0 {
		return 0
	}
	return now.Year() - year
}
