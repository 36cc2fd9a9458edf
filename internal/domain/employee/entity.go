package employee

import "time"

// Employee is the subset of the employee record the leave ledger reads.
type Employee struct {
	ID           string
	EmployeeCode string
	FullName     string
	HireDate     time.Time
	DeletedAt    *time.Time
}

func (e Employee) Active() bool {
	return e.DeletedAt == nil
}
