package enums

import "fmt"

// ClassSessionStatus tracks whether a class session ("turma") accepts students.
type ClassSessionStatus string

const (
	ClassSessionStatusOpen       ClassSessionStatus = "aberta"
	ClassSessionStatusFull       ClassSessionStatus = "lotada"
	ClassSessionStatusInProgress ClassSessionStatus = "em_andamento"
	ClassSessionStatusConcluded  ClassSessionStatus = "concluida"
	ClassSessionStatusCancelled  ClassSessionStatus = "cancelada"
)

var validClassSessionStatuses = []ClassSessionStatus{
	ClassSessionStatusOpen,
	ClassSessionStatusFull,
	ClassSessionStatusInProgress,
	ClassSessionStatusConcluded,
	ClassSessionStatusCancelled,
}

func (s ClassSessionStatus) String() string {
	return string(s)
}

func (s ClassSessionStatus) IsValid() bool {
	for _, candidate := range validClassSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseClassSessionStatus(value string) (ClassSessionStatus, error) {
	for _, candidate := range validClassSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid class session status %q", value)
}
