package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
	"github.com/segyhp/loan-engine/pkg/utils"
)

type memoryRepository struct {
	mu        sync.RWMutex
	loans     map[string]*domain.LoanApplication
	schedules map[string]domain.Schedule
	entries   map[string]*domain.EmiScheduleEntry
}

// NewMemoryLoanRepository returns a process-local LoanRepository with the
// same version and status guards as the SQL store. Stored values are copied
// on the way in and out.
func NewMemoryLoanRepository() LoanRepository {
	return &memoryRepository{
		loans:     make(map[string]*domain.LoanApplication),
		schedules: make(map[string]domain.Schedule),
		entries:   make(map[string]*domain.EmiScheduleEntry),
	}
}

func copyEntry(e *domain.EmiScheduleEntry) *domain.EmiScheduleEntry {
	c := *e
	return &c
}

func (r *memoryRepository) Create(ctx context.Context, loan *domain.LoanApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loans[loan.ID]; ok {
		return customError.ErrConcurrentUpdate
	}
	r.loans[loan.ID] = loan.Clone()
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loan, ok := r.loans[loanID]
	if !ok {
		return nil, customError.ErrLoanNotFound
	}
	return loan.Clone(), nil
}

func (r *memoryRepository) Update(ctx context.Context, loan *domain.LoanApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(loan); err != nil {
		return err
	}
	r.storeLoan(loan)
	return nil
}

func (r *memoryRepository) checkVersion(loan *domain.LoanApplication) error {
	stored, ok := r.loans[loan.ID]
	if !ok {
		return customError.ErrLoanNotFound
	}
	if stored.Version != loan.Version {
		return customError.ErrConcurrentUpdate
	}
	return nil
}

func (r *memoryRepository) storeLoan(loan *domain.LoanApplication) {
	loan.Version++
	r.loans[loan.ID] = loan.Clone()
}

func (r *memoryRepository) SaveApproval(ctx context.Context, loan *domain.LoanApplication, schedule domain.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(loan); err != nil {
		return err
	}
	if _, exists := r.schedules[loan.ID]; exists {
		return customError.ErrConcurrentUpdate
	}

	stored := make(domain.Schedule, 0, len(schedule))
	for _, e := range schedule {
		c := copyEntry(e)
		stored = append(stored, c)
		r.entries[c.ID] = c
	}
	r.schedules[loan.ID] = stored
	r.storeLoan(loan)
	return nil
}

func (r *memoryRepository) GetSchedule(ctx context.Context, loanID string) (domain.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.schedules[loanID]
	out := make(domain.Schedule, 0, len(stored))
	for _, e := range stored {
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func (r *memoryRepository) GetEntry(ctx context.Context, entryID string) (*domain.EmiScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entryID]
	if !ok {
		return nil, customError.ErrEntryNotFound
	}
	return copyEntry(e), nil
}

func (r *memoryRepository) SavePayment(ctx context.Context, entry *domain.EmiScheduleEntry, closed *domain.LoanApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.entries[entry.ID]
	if !ok {
		return customError.ErrEntryNotFound
	}
	if !stored.Status.Payable() {
		return customError.ErrConcurrentUpdate
	}
	if closed != nil {
		if err := r.checkVersion(closed); err != nil {
			return err
		}
	} else {
		loan, ok := r.loans[stored.LoanID]
		if !ok || loan.Status != domain.LoanStatusActive {
			return customError.ErrConcurrentUpdate
		}
		loan.Version++
	}

	*stored = *entry
	if closed != nil {
		r.storeLoan(closed)
	}
	return nil
}

func (r *memoryRepository) SaveSettlement(ctx context.Context, loan *domain.LoanApplication, skipped domain.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(loan); err != nil {
		return err
	}

	for _, e := range skipped {
		if stored, ok := r.entries[e.ID]; !ok || stored.LoanID != loan.ID || !stored.Status.Payable() {
			return customError.ErrConcurrentUpdate
		}
	}
	for _, e := range skipped {
		r.entries[e.ID].Status = domain.EntryStatusSkipped
	}
	r.storeLoan(loan)
	return nil
}

func (r *memoryRepository) ListIDsByStatus(ctx context.Context, status domain.LoanStatus) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var loans []*domain.LoanApplication
	for _, loan := range r.loans {
		if loan.Status == status {
			loans = append(loans, loan)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].AppliedAt.Before(loans[j].AppliedAt) })

	ids := make([]string, 0, len(loans))
	for _, loan := range loans {
		ids = append(ids, loan.ID)
	}
	return ids, nil
}

func (r *memoryRepository) MarkOverdue(ctx context.Context, loanID string, asOf time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, e := range r.schedules[loanID] {
		if e.Status == domain.EntryStatusPending && utils.IsDateOverdue(e.DueDate, asOf) {
			e.Status = domain.EntryStatusOverdue
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) ListDueBetween(ctx context.Context, from, to time.Time) (domain.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out domain.Schedule
	for loanID, schedule := range r.schedules {
		if loan := r.loans[loanID]; loan == nil || loan.Status != domain.LoanStatusActive {
			continue
		}
		for _, e := range schedule {
			if e.Status == domain.EntryStatusPending && !e.DueDate.Before(from) && e.DueDate.Before(to) {
				out = append(out, copyEntry(e))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].LoanID < out[j].LoanID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}
