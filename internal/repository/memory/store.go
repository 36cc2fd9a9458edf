// Package memory keeps the leave ledger in process memory. It backs dev mode
// and the service tests, and mirrors the PostgreSQL repositories one to one.
package memory

import (
	"context"
	"sync"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/employee"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/leave"
)

type txKey struct{}

// FaultHook lets tests fail a named storage operation.
type FaultHook func(op string) error

type Store struct {
	mu        sync.RWMutex
	types     map[string]leave.LeaveType
	balances  map[leave.BalanceKey]leave.LeaveBalance
	requests  map[string]leave.LeaveRequest
	employees map[string]employee.Employee
	fault     FaultHook
}

func NewStore(types []leave.LeaveType) *Store {
	s := &Store{
		types:     make(map[string]leave.LeaveType),
		balances:  make(map[leave.BalanceKey]leave.LeaveBalance),
		requests:  make(map[string]leave.LeaveRequest),
		employees: make(map[string]employee.Employee),
	}
	for _, t := range types {
		s.types[t.Code] = t
	}
	return s
}

func (s *Store) AddEmployee(e employee.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

func (s *Store) SetFaultHook(hook FaultHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = hook
}

// WithTransaction holds the store exclusively while fn runs and restores the
// pre-transaction state if fn fails. Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	txCtx := context.WithValue(ctx, txKey{}, true)

	if err := fn(txCtx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// read runs fn under the read lock unless ctx already owns the store.
func (s *Store) read(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn()
}

func (s *Store) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn()
}

func (s *Store) check(op string) error {
	if s.fault == nil {
		return nil
	}
	if err := s.fault(op); err != nil {
		return leave.Storage(op, err)
	}
	return nil
}

type snapshot struct {
	balances map[leave.BalanceKey]leave.LeaveBalance
	requests map[string]leave.LeaveRequest
}

func (s *Store) snapshot() snapshot {
	balances := make(map[leave.BalanceKey]leave.LeaveBalance, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	requests := make(map[string]leave.LeaveRequest, len(s.requests))
	for k, v := range s.requests {
		requests[k] = v
	}
	return snapshot{balances: balances, requests: requests}
}

func (s *Store) restore(snap snapshot) {
	s.balances = snap.balances
	s.requests = snap.requests
}
