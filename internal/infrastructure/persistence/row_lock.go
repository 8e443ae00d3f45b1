package persistence

import (
	"context"
	"fmt"
	"sort"

	"github.com/arcade/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row-lock helper. Every function here must run on a *gorm.DB bound to an
// open transaction; the lock is released when that transaction ends.
// SQLite has no row locks: the dialect drops the FOR UPDATE clause and the
// single-writer database lock gives the same serialization.

// forUpdate adds SELECT ... FOR UPDATE to the query
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// LockForUpdate loads the single row matching query into dest and holds an
// exclusive lock on it. Returns shared.ErrNotFound when no row matches.
func LockForUpdate(ctx context.Context, tx *gorm.DB, dest any, query string, args ...any) error {
	err := forUpdate(tx.WithContext(ctx)).Where(query, args...).Take(dest).Error
	return TranslateError("lock row", err)
}

// LockOrdered locks the rows of model whose key column is in ids, acquiring
// the locks in ascending key order so two transactions locking overlapping
// sets cannot deadlock. dest receives the rows in that order. Missing ids are
// reported as shared.ErrNotFound.
func LockOrdered(ctx context.Context, tx *gorm.DB, dest any, keyColumn string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sorted := uniqueSorted(ids)

	result := forUpdate(tx.WithContext(ctx)).
		Where(fmt.Sprintf("%s IN ?", keyColumn), sorted).
		Order(clause.OrderByColumn{Column: clause.Column{Name: keyColumn}}).
		Find(dest)
	if result.Error != nil {
		return TranslateError("lock rows", result.Error)
	}
	if int(result.RowsAffected) != len(sorted) {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateWithVersion applies updates to the row identified by keyColumn = key
// only if its version column still equals expectedVersion, and bumps the
// version in the same statement. Returns shared.ErrConcurrencyConflict when
// no row matched, meaning another writer committed first.
func UpdateWithVersion(ctx context.Context, tx *gorm.DB, model any, keyColumn string, key any, expectedVersion int, updates map[string]any) error {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = expectedVersion + 1

	result := tx.WithContext(ctx).Model(model).
		Where(fmt.Sprintf("%s = ? AND version = ?", keyColumn), key, expectedVersion).
		Updates(values)
	if result.Error != nil {
		return TranslateError("versioned update", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
