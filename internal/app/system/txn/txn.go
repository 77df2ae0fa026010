// Package txn runs a group of MongoDB writes as one transaction.
//
// Transactions need a replica set (or sharded cluster). On a standalone
// server the Runner detects the "not supported" failure, logs it once, and
// from then on runs the function without a transaction. In that mode each
// write is applied on its own; a failure part-way through leaves the
// earlier writes in place and callers compensate where they can.
package txn

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Runner executes functions inside MongoDB transactions when available.
type Runner struct {
	client      *mongo.Client
	log         *zap.Logger
	unsupported atomic.Bool
}

// New returns a Runner for client. A nil client yields a Runner that always
// runs without a transaction.
func New(client *mongo.Client, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{client: client, log: log}
}

// Atomic reports whether Run still uses real transactions.
func (r *Runner) Atomic() bool {
	return r != nil && r.client != nil && !r.unsupported.Load()
}

// Run calls fn with a context bound to a transaction. Store calls made with
// that context join the transaction. fn may be retried by the driver on
// transient errors, so it must not have side effects outside the database.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.Atomic() {
		return fn(ctx)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			r.fallback(err)
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		// The first write inside the transaction is what fails on a
		// standalone server, so nothing has been applied yet.
		r.fallback(err)
		return fn(ctx)
	}
	return err
}

func (r *Runner) fallback(err error) {
	if r.unsupported.CompareAndSwap(false, true) {
		r.log.Warn("transactions not supported by MongoDB deployment; multi-document writes are not atomic",
			zap.Error(err))
	}
}

// IsNotSupported reports whether err means the deployment cannot run
// transactions (standalone server, DocumentDB limits, and similar).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263: // IllegalOperation and the transaction refusals seen on standalone/DocumentDB
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }
	switch {
	case has("transaction") && has("replica set"):
		return true
	case has("transaction") && has("session"):
		return true
	case has("session") && has("not supported"):
		return true
	case has("illegal operation"):
		return true
	}
	return false
}
