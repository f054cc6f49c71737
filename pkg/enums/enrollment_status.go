package enums

import "fmt"

// EnrollmentStatus is the state of a student's access to a course.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ativo"
	EnrollmentStatusConcluded EnrollmentStatus = "concluido"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelado"
	EnrollmentStatusLocked    EnrollmentStatus = "trancado"
)

var validEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusActive,
	EnrollmentStatusConcluded,
	EnrollmentStatusCancelled,
	EnrollmentStatusLocked,
}

func (s EnrollmentStatus) String() string {
	return string(s)
}

func (s EnrollmentStatus) IsValid() bool {
	for _, candidate := range validEnrollmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseEnrollmentStatus(value string) (EnrollmentStatus, error) {
	for _, candidate := range validEnrollmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enrollment status %q", value)
}
