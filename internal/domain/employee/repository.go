package employee

import "context"

// Directory answers identity questions about employees owned by the HR core.
type Directory interface {
	Exists(ctx context.Context, employeeID string) (bool, error)
}
