package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
)

// memStore is an in-memory Store for exercising the upload/review/apply
// flow without a database.
type memStore struct {
	nextID        int64
	categories    []core.Category
	subcategories []core.Subcategory
	budgets       []core.Budget
	transactions  []core.Transaction
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	var out []core.Category
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListSubcategories(_ context.Context, userID int64) ([]core.Subcategory, error) {
	var out []core.Subcategory
	for _, s := range m.subcategories {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) EnsureCategory(_ context.Context, userID int64, name string) (int64, error) {
	for _, c := range m.categories {
		if c.UserID == userID && c.Name == name {
			return c.ID, nil
		}
	}
	c := core.Category{ID: m.id(), UserID: userID, Name: name}
	m.categories = append(m.categories, c)
	return c.ID, nil
}

func (m *memStore) EnsureSubcategory(_ context.Context, userID, categoryID int64, name string) (int64, error) {
	for _, s := range m.subcategories {
		if s.UserID == userID && s.CategoryID == categoryID && s.Name == name {
			return s.ID, nil
		}
	}
	s := core.Subcategory{ID: m.id(), UserID: userID, CategoryID: categoryID, Name: name}
	m.subcategories = append(m.subcategories, s)
	return s.ID, nil
}

func (m *memStore) ListBudgets(_ context.Context, userID int64) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range m.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) ListTransactions(_ context.Context, userID int64) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range m.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) InsertBudget(_ context.Context, b core.Budget) (int64, error) {
	b.ID = m.id()
	m.budgets = append(m.budgets, b)
	return b.ID, nil
}

func (m *memStore) InsertTransaction(_ context.Context, t core.Transaction) (int64, error) {
	t.ID = m.id()
	m.transactions = append(m.transactions, t)
	return t.ID, nil
}

func (m *memStore) DeleteBudgets(_ context.Context, userID int64, ids []int64) error {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.budgets[:0]
	for _, b := range m.budgets {
		if b.UserID == userID && drop[b.ID] {
			continue
		}
		kept = append(kept, b)
	}
	m.budgets = kept
	return nil
}

func (m *memStore) DeleteTransactions(_ context.Context, userID int64, ids []int64) error {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.transactions[:0]
	for _, t := range m.transactions {
		if t.UserID == userID && drop[t.ID] {
			continue
		}
		kept = append(kept, t)
	}
	m.transactions = kept
	return nil
}

const budgetCSV = budgetHeader + "\n" +
	"expense,Housing,Rent,900.00,EUR,recurring,,1,month,,1,2025-01-01,,Monthly rent\n" +
	"expense,Insurance,,120.50,EUR,one-time,2025-02-01,,,,,,,Car insurance\n"

func TestImportFlowKeepAccumulatesDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	// First upload of a fresh file: nothing matches yet.
	id, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	review, err := im.Review(1, id)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if review.ValidCount != 2 || review.InvalidCount != 0 || review.DuplicateCount != 0 {
		t.Fatalf("review = %+v, want 2 valid, 0 invalid, 0 duplicates", review)
	}

	result, err := im.Apply(ctx, 1, id, ActionKeep)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Inserted != 2 || result.Deleted != 0 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 inserted", result)
	}
	if len(store.budgets) != 2 {
		t.Fatalf("store has %d budgets, want 2", len(store.budgets))
	}

	// Same file again: every row is now a duplicate of a stored record.
	id2, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	review2, err := im.Review(1, id2)
	if err != nil {
		t.Fatalf("second Review: %v", err)
	}
	if review2.DuplicateCount != 2 {
		t.Errorf("DuplicateCount = %d, want 2", review2.DuplicateCount)
	}
	for _, p := range review2.Preview {
		if !p.Duplicate {
			t.Errorf("preview row %+v not flagged as duplicate", p.Row)
		}
	}

	// Keep inserts anyway and the duplicates pile up.
	result2, err := im.Apply(ctx, 1, id2, ActionKeep)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if result2.Inserted != 2 || result2.Deleted != 0 {
		t.Fatalf("result = %+v, want 2 inserted, 0 deleted", result2)
	}
	if len(store.budgets) != 4 {
		t.Fatalf("store has %d budgets, want 4", len(store.budgets))
	}
}

func TestImportFlowReplaceCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	// Two keep applies leave every record twice.
	for i := 0; i < 2; i++ {
		id, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
		if err != nil {
			t.Fatalf("Upload %d: %v", i, err)
		}
		if _, err := im.Apply(ctx, 1, id, ActionKeep); err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
	}
	if len(store.budgets) != 4 {
		t.Fatalf("store has %d budgets, want 4", len(store.budgets))
	}

	// Replace deletes all four matches and reinserts the two rows.
	id, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	result, err := im.Apply(ctx, 1, id, ActionReplace)
	if err != nil {
		t.Fatalf("Apply replace: %v", err)
	}
	if result.Deleted != 4 || result.Inserted != 2 {
		t.Fatalf("result = %+v, want 4 deleted, 2 inserted", result)
	}
	if len(store.budgets) != 2 {
		t.Fatalf("store has %d budgets after replace, want 2", len(store.budgets))
	}
}

func TestImportFlowReplaceOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	id, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	result, err := im.Apply(ctx, 1, id, ActionReplace)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Deleted != 0 || result.Inserted != 2 {
		t.Fatalf("result = %+v, want 0 deleted, 2 inserted", result)
	}
}

func TestImportFlowTransactions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	csv := "date,type,category,subcategory,description,amount,currency,note\n" +
		"2025-02-03,expense,Groceries,,Weekly shop,54.20,EUR,\n" +
		"2025-02-05,income,Salary,,February payroll,2100.00,EUR,\n"

	id, err := im.Upload(ctx, 1, KindTransaction, []byte(csv))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	result, err := im.Apply(ctx, 1, id, ActionKeep)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Kind != KindTransaction || result.Inserted != 2 {
		t.Fatalf("result = %+v", result)
	}
	if len(store.transactions) != 2 {
		t.Fatalf("store has %d transactions, want 2", len(store.transactions))
	}

	// The same day/amount/description pair counts as a duplicate; the
	// same purchase on another date does not.
	csv2 := "date,type,category,subcategory,description,amount,currency,note\n" +
		"2025-02-03,expense,Groceries,,Weekly shop,54.20,EUR,\n" +
		"2025-02-10,expense,Groceries,,Weekly shop,54.20,EUR,\n"
	id2, err := im.Upload(ctx, 1, KindTransaction, []byte(csv2))
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	review, err := im.Review(1, id2)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if review.DuplicateCount != 1 {
		t.Errorf("DuplicateCount = %d, want 1", review.DuplicateCount)
	}
}

func TestApplyConsumesBatch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	id, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := im.Apply(ctx, 1, id, ActionKeep); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := im.Apply(ctx, 1, id, ActionKeep); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("second Apply: err = %v, want ErrBatchNotFound", err)
	}
	if _, err := im.Review(1, id); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("Review after Apply: err = %v, want ErrBatchNotFound", err)
	}
	if len(store.budgets) != 2 {
		t.Errorf("store has %d budgets, want 2", len(store.budgets))
	}
}

func TestApplyForeignUser(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	id, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := im.Apply(ctx, 2, id, ActionKeep); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("foreign Apply: err = %v, want ErrBatchNotFound", err)
	}
	// The owner's batch survived the foreign attempt.
	if _, err := im.Apply(ctx, 1, id, ActionKeep); err != nil {
		t.Errorf("owner Apply: %v", err)
	}
}

func TestApplySkipsRowsFailingRevalidation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	// Stage a batch directly with one sound row and one that fails the
	// structural re-validation at insert time.
	good := Row{
		Kind:        KindBudget,
		Type:        core.Expense,
		Category:    "Food",
		AmountCents: 1000,
		Currency:    "EUR",
		Weekday:     core.NoWeekday,
		OneTimeDate: mustDate(t, "2025-01-01"),
	}
	bad := Row{
		Kind:        KindBudget,
		Type:        core.Expense,
		Category:    "Food",
		AmountCents: 1000,
		Currency:    "EUR",
		Weekday:     core.NoWeekday,
		IsRecurring: true,
		RepeatUnit:  core.Monthly,
		// RepeatInterval and DayOfMonth missing.
	}
	id := im.batches.Put(&Batch{
		UserID:       1,
		Kind:         KindBudget,
		Rows:         []Row{good, bad},
		ExistingSigs: make(SignatureIndex),
	})

	result, err := im.Apply(ctx, 1, id, ActionKeep)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Inserted != 1 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want 1 inserted, 1 skipped", result)
	}
	if len(store.budgets) != 1 {
		t.Errorf("store has %d budgets, want 1", len(store.budgets))
	}
}

func TestUploadIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	im := New(store, NewBatchStore(16, time.Minute))

	// User 1 already holds the records.
	id, err := im.Upload(ctx, 1, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := im.Apply(ctx, 1, id, ActionKeep); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// The same file for user 2 shows no duplicates.
	id2, err := im.Upload(ctx, 2, KindBudget, []byte(budgetCSV))
	if err != nil {
		t.Fatalf("Upload user 2: %v", err)
	}
	review, err := im.Review(2, id2)
	if err != nil {
		t.Fatalf("Review user 2: %v", err)
	}
	if review.DuplicateCount != 0 {
		t.Errorf("DuplicateCount = %d for a fresh user, want 0", review.DuplicateCount)
	}
}

func TestParseAction(t *testing.T) {
	if a, err := ParseAction("keep"); err != nil || a != ActionKeep {
		t.Errorf("ParseAction(keep) = %q, %v", a, err)
	}
	if a, err := ParseAction("replace"); err != nil || a != ActionReplace {
		t.Errorf("ParseAction(replace) = %q, %v", a, err)
	}
	for _, bad := range []string{"", "merge", "KEEP"} {
		if _, err := ParseAction(bad); err == nil {
			t.Errorf("ParseAction(%q) = nil error, want error", bad)
		}
	}
}
