package policykit

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

// txConnKey carries the open transaction through the callback context so
// every statement issued inside Transaction runs on it.
type txConnKey struct{}

func withTxConn(ctx context.Context, tx *dbkit.Tx) context.Context {
	return context.WithValue(ctx, txConnKey{}, tx)
}

func txFromContext(ctx context.Context) (*dbkit.Tx, bool) {
	tx, ok := ctx.Value(txConnKey{}).(*dbkit.Tx)
	return tx, ok
}

// conn returns the connection statements should run on: the transaction
// carried by ctx inside Transaction callbacks, the service connection
// otherwise. Graph store reads keep their own connection; only catalog and
// ledger statements are transaction-bound.
func (s *Service) conn(ctx context.Context) dbkit.IDB {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// Transaction executes a function within a database transaction with automatic commit/rollback.
// If the function returns an error, the transaction is rolled back. Otherwise, it's committed.
// Service calls made with the callback's context run on the transaction.
//
// Example:
//
//	err := service.Transaction(ctx, func(ctx context.Context) error {
//	    if _, err := service.Assign(ctx, policykit.AssignmentInput{PrincipalID: "user1", Role: "editor", ScopeID: "doc-1"}); err != nil {
//	        return err // This will cause a rollback
//	    }
//	    if _, err := service.Assign(ctx, policykit.AssignmentInput{PrincipalID: "user2", Role: "viewer", ScopeID: "doc-1"}); err != nil {
//	        return err // This will cause a rollback
//	    }
//	    return nil // This will cause a commit
//	})
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error

	if tx, ok := txFromContext(ctx); ok {
		// Already inside a transaction, use savepoint
		err = tx.Transaction(ctx, func(inner *dbkit.Tx) error {
			return fn(withTxConn(ctx, inner))
		})
	} else if tx, ok := s.db.(*dbkit.Tx); ok {
		err = tx.Transaction(ctx, func(inner *dbkit.Tx) error {
			return fn(withTxConn(ctx, inner))
		})
	} else if db, ok := s.db.(*dbkit.DBKit); ok {
		err = db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(withTxConn(ctx, tx))
		})
	} else {
		err = fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}

	duration := time.Since(start)
	s.txMonitor.recordTransaction(duration, err == nil)

	return err
}

// TransactionWithOptions executes a function within a database transaction with custom options.
// Supports read-only transactions, isolation levels, and other transaction parameters.
//
// Example:
//
//	err := service.TransactionWithOptions(ctx, dbkit.SerializableTxOptions(), func(ctx context.Context) error {
//	    _, err := service.Assign(ctx, policykit.AssignmentInput{PrincipalID: "user1", Role: "admin"})
//	    return err
//	})
func (s *Service) TransactionWithOptions(ctx context.Context, opts dbkit.TxOptions, fn func(ctx context.Context) error) error {
	// Nested transactions use savepoints (no options support there)
	if tx, ok := txFromContext(ctx); ok {
		return tx.Transaction(ctx, func(inner *dbkit.Tx) error {
			return fn(withTxConn(ctx, inner))
		})
	}
	if tx, ok := s.db.(*dbkit.Tx); ok {
		return tx.Transaction(ctx, func(inner *dbkit.Tx) error {
			return fn(withTxConn(ctx, inner))
		})
	}

	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.TransactionWithOptions(ctx, opts, func(tx *dbkit.Tx) error {
			return fn(withTxConn(ctx, tx))
		})
	}

	return fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
}

// ReadOnlyTransaction executes a function within a read-only database transaction.
// Useful for operations that only read data and want to ensure consistency.
//
// Example:
//
//	err := service.ReadOnlyTransaction(ctx, func(ctx context.Context) error {
//	    assignments, err := service.ListAssignments(ctx, "user1", false)
//	    if err != nil {
//	        return err
//	    }
//	    _ = assignments
//	    return nil
//	})
func (s *Service) ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.TransactionWithOptions(ctx, dbkit.ReadOnlyTxOptions(), fn)
}
