package importer

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

// Store is the persistence surface the import pipeline relies on. The
// backing store must enforce uniqueness of (user, category name) and
// (user, category, subcategory name) so the Ensure operations can treat
// a constraint violation as "already exists, retry lookup".
type Store interface {
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	ListSubcategories(ctx context.Context, userID int64) ([]core.Subcategory, error)
	EnsureCategory(ctx context.Context, userID int64, name string) (int64, error)
	EnsureSubcategory(ctx context.Context, userID, categoryID int64, name string) (int64, error)

	ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error)
	InsertBudget(ctx context.Context, b core.Budget) (int64, error)
	InsertTransaction(ctx context.Context, t core.Transaction) (int64, error)
	DeleteBudgets(ctx context.Context, userID int64, ids []int64) error
	DeleteTransactions(ctx context.Context, userID int64, ids []int64) error
}

// Action is the user's choice at apply time.
type Action string

const (
	// ActionKeep inserts every valid row as a new record; duplicates
	// accumulate.
	ActionKeep Action = "keep"
	// ActionReplace first deletes every existing record whose signature
	// matches any incoming row, then inserts every valid row.
	ActionReplace Action = "replace"
)

// ParseAction validates the apply form value.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionKeep:
		return ActionKeep, nil
	case ActionReplace:
		return ActionReplace, nil
	default:
		return "", fmt.Errorf("action must be %q or %q", ActionKeep, ActionReplace)
	}
}

// previewLimit caps how many rows a review summary carries.
const previewLimit = 25

// Importer ties the parser, the batch store and the merge applier
// together into the upload → review → apply flow.
type Importer struct {
	store   Store
	batches *BatchStore
}

func New(store Store, batches *BatchStore) *Importer {
	return &Importer{store: store, batches: batches}
}

// Upload parses the raw bytes, flags duplicates against the user's
// persisted records and stages the batch. It returns the opaque batch
// id the caller should carry in its session.
func (im *Importer) Upload(ctx context.Context, userID int64, kind Kind, data []byte) (string, error) {
	rows, invalid := Parse(data, kind)

	existing, err := im.existingSignatures(ctx, userID, kind)
	if err != nil {
		return "", fmt.Errorf("index existing records: %w", err)
	}

	batch := &Batch{
		UserID:       userID,
		Kind:         kind,
		Rows:         rows,
		Invalid:      invalid,
		Duplicates:   MarkDuplicates(rows, existing),
		ExistingSigs: existing,
	}
	id := im.batches.Put(batch)

	slog.InfoContext(ctx, "Import batch staged",
		"batch_id", id,
		"kind", kind,
		"valid", len(rows),
		"invalid", len(invalid),
		"duplicates", len(batch.Duplicates))
	return id, nil
}

// PreviewRow is one row of the review summary.
type PreviewRow struct {
	Row       Row  `json:"row"`
	Duplicate bool `json:"is_duplicate"`
}

// Review summarizes a staged batch for user confirmation.
type Review struct {
	ValidCount     int          `json:"valid_count"`
	InvalidCount   int          `json:"invalid_count"`
	DuplicateCount int          `json:"duplicate_count"`
	Invalid        []InvalidRow `json:"invalid_rows"`
	Preview        []PreviewRow `json:"preview_rows"`
}

// Review returns the summary for a staged batch without consuming it.
func (im *Importer) Review(userID int64, batchID string) (*Review, error) {
	batch, err := im.batches.Get(batchID, userID)
	if err != nil {
		return nil, err
	}

	duplicate := make(map[int]bool, len(batch.Duplicates))
	for _, i := range batch.Duplicates {
		duplicate[i] = true
	}

	review := &Review{
		ValidCount:     len(batch.Rows),
		InvalidCount:   len(batch.Invalid),
		DuplicateCount: len(batch.Duplicates),
		Invalid:        batch.Invalid,
	}
	for i, row := range batch.Rows {
		if i >= previewLimit {
			break
		}
		review.Preview = append(review.Preview, PreviewRow{Row: row, Duplicate: duplicate[i]})
	}
	return review, nil
}

// ApplyResult reports what an apply changed.
type ApplyResult struct {
	Kind     Kind   `json:"kind"`
	BatchID  string `json:"batch_id"`
	Inserted int    `json:"inserted"`
	Deleted  int    `json:"deleted"`
	Skipped  int    `json:"skipped"`
}

// Apply consumes a staged batch and reconciles it against the store.
// The batch is removed before any persistence happens, so a concurrent
// second apply reports ErrBatchNotFound instead of double-applying.
func (im *Importer) Apply(ctx context.Context, userID int64, batchID string, action Action) (*ApplyResult, error) {
	batch, err := im.batches.Take(batchID, userID)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{Kind: batch.Kind, BatchID: batchID}

	if action == ActionReplace {
		deleted, err := im.deleteMatching(ctx, userID, batch)
		if err != nil {
			return nil, err
		}
		result.Deleted = deleted
	}

	for _, row := range batch.Rows {
		if err := im.insertRow(ctx, userID, row); err != nil {
			// Rows failing the final structural re-validation are
			// skipped rather than aborting the whole apply.
			slog.WarnContext(ctx, "Skipping import row at apply time",
				"batch_id", batchID, "error", err)
			result.Skipped++
			continue
		}
		result.Inserted++
	}

	slog.InfoContext(ctx, "Import batch applied",
		"batch_id", batchID,
		"kind", batch.Kind,
		"action", action,
		"inserted", result.Inserted,
		"deleted", result.Deleted,
		"skipped", result.Skipped)
	return result, nil
}

// deleteMatching removes every existing record whose signature matches
// any signature present among the batch rows. All matches for a
// signature are deleted, not just one.
func (im *Importer) deleteMatching(ctx context.Context, userID int64, batch *Batch) (int, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, row := range batch.Rows {
		for _, id := range batch.ExistingSigs[row.Signature()] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var err error
	switch batch.Kind {
	case KindTransaction:
		err = im.store.DeleteTransactions(ctx, userID, ids)
	default:
		err = im.store.DeleteBudgets(ctx, userID, ids)
	}
	if err != nil {
		return 0, fmt.Errorf("delete replaced records: %w", err)
	}
	return len(ids), nil
}

// insertRow persists one parsed row, auto-creating its category and
// subcategory as needed.
func (im *Importer) insertRow(ctx context.Context, userID int64, row Row) error {
	categoryID, err := im.store.EnsureCategory(ctx, userID, row.Category)
	if err != nil {
		return fmt.Errorf("ensure category %q: %w", row.Category, err)
	}

	var subcategoryID int64
	if row.Subcategory != "" {
		subcategoryID, err = im.store.EnsureSubcategory(ctx, userID, categoryID, row.Subcategory)
		if err != nil {
			return fmt.Errorf("ensure subcategory %q: %w", row.Subcategory, err)
		}
	}

	if row.Kind == KindTransaction {
		t := core.Transaction{
			UserID:        userID,
			Date:          row.Date,
			Type:          row.Type,
			CategoryID:    categoryID,
			SubcategoryID: subcategoryID,
			Description:   row.Description,
			AmountCents:   row.AmountCents,
			Currency:      row.Currency,
			Note:          row.Note,
		}
		if err := t.Validate(); err != nil {
			return err
		}
		_, err := im.store.InsertTransaction(ctx, t)
		return err
	}

	b := core.Budget{
		UserID:         userID,
		Type:           row.Type,
		CategoryID:     categoryID,
		SubcategoryID:  subcategoryID,
		AmountCents:    row.AmountCents,
		Currency:       row.Currency,
		IsRecurring:    row.IsRecurring,
		OneTimeDate:    row.OneTimeDate,
		RepeatUnit:     row.RepeatUnit,
		RepeatInterval: row.RepeatInterval,
		DayOfMonth:     row.DayOfMonth,
		Weekday:        row.Weekday,
		StartDate:      row.StartDate,
		EndDate:        row.EndDate,
		Note:           row.Note,
	}
	if err := b.Validate(); err != nil {
		return err
	}
	_, err = im.store.InsertBudget(ctx, b)
	return err
}

// existingSignatures indexes the caller's persisted records by
// signature, resolving category and subcategory names through the
// store.
func (im *Importer) existingSignatures(ctx context.Context, userID int64, kind Kind) (SignatureIndex, error) {
	categories, err := im.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	subcategories, err := im.store.ListSubcategories(ctx, userID)
	if err != nil {
		return nil, err
	}

	categoryName := make(map[int64]string, len(categories))
	for _, c := range categories {
		categoryName[c.ID] = c.Name
	}
	subcategoryName := make(map[int64]string, len(subcategories))
	for _, s := range subcategories {
		subcategoryName[s.ID] = s.Name
	}

	index := make(SignatureIndex)
	if kind == KindTransaction {
		transactions, err := im.store.ListTransactions(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, t := range transactions {
			sig := TransactionSignature(t, categoryName[t.CategoryID], subcategoryName[t.SubcategoryID])
			index.Add(sig, t.ID)
		}
		return index, nil
	}

	budgets, err := im.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, b := range budgets {
		sig := BudgetSignature(b, categoryName[b.CategoryID], subcategoryName[b.SubcategoryID])
		index.Add(sig, b.ID)
	}
	return index, nil
}
