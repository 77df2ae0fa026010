// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"users", ensureUsers},
		{"elders", ensureElders},
		{"pending_requests", ensurePendingRequests},
		{"identities", ensureIdentities},
		{"audit_events", ensureAuditEvents},
	}

	var problems []string
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolVal(p *bool) bool { return p != nil && *p }

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB returns IndexOptionsConflict when an index with the same keys
// exists under a different name or with different options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

// recreate drops the index named old and creates m in its place.
func recreate(ctx context.Context, coll *mongo.Collection, old string, m mongo.IndexModel) error {
	if _, err := coll.Indexes().DropOne(ctx, old); err != nil {
		return fmt.Errorf("drop %s: %w", old, err)
	}
	_, err := coll.Indexes().CreateOne(ctx, m)
	return err
}

func describeCreateErr(coll *mongo.Collection, name, sig string, unique bool, err error) string {
	if unique && isDuplicateKeyErr(err) {
		helper := ""
		switch {
		case coll.Name() == "users" && strings.Contains(sig, "email:1"):
			helper = "; duplicates exist on users.email. Example finder:\n" +
				`db.users.aggregate([{ $group: { _id: "$email", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`
		case coll.Name() == "users" && strings.Contains(sig, "elder_code:1"):
			helper = "; duplicates exist on users.elder_code"
		}
		return fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)%s", coll.Name(), name, helper)
	}
	return fmt.Sprintf("%s(%s): %v", coll.Name(), name, err)
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			desiredUnique = m.Options.Unique
		}
		unique := boolVal(desiredUnique)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", sig),
			zap.Bool("unique", unique),
		}

		existing := listExisting(ctx, coll)

		if ex, ok := existing[sig]; ok {
			switch {
			case boolVal(ex.Unique) == unique && (desiredName == "" || ex.Name == desiredName):
				zap.L().Debug("reusing existing index", fields...)
			case boolVal(ex.Unique) == unique:
				// same keys, different name: align the name
				if err := recreate(ctx, coll, ex.Name, m); err != nil {
					errs = append(errs, fmt.Sprintf("%s(%s): rename failed: %v", coll.Name(), desiredName, err))
					continue
				}
				zap.L().Info("index renamed", append(fields, zap.String("from", ex.Name), zap.Duration("took", time.Since(start)))...)
			default:
				// options changed (e.g. upgrading to unique)
				if err := recreate(ctx, coll, ex.Name, m); err != nil {
					errs = append(errs, describeCreateErr(coll, desiredName, sig, unique, err))
					continue
				}
				zap.L().Info("index dropped and recreated", append(fields, zap.Duration("took", time.Since(start)))...)
			}
			continue
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err != nil && isOptionsConflictErr(err) {
			// raced with another creator; look again
			if ex, ok := listExisting(ctx, coll)[sig]; ok {
				if boolVal(ex.Unique) == unique {
					zap.L().Info("reusing existing index (post-conflict)", fields...)
					continue
				}
				err = recreate(ctx, coll, ex.Name, m)
			}
		}
		if err != nil {
			zap.L().Warn("index ensure failed", append(fields, zap.Duration("took", time.Since(start)), zap.Error(err))...)
			errs = append(errs, describeCreateErr(coll, desiredName, sig, unique, err))
			continue
		}
		zap.L().Info("index ensured", append(fields, zap.String("created_name", created), zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("users"), []mongo.IndexModel{
		// Email is the login handle and unique across elders and family
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		// Elder codes are unique among elders. Family records carry no code,
		// so the partial filter keeps them out of the index.
		{
			Keys: bson.D{{Key: "elder_code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_elder_code").
				SetPartialFilterExpression(bson.M{"elder_code": bson.M{"$type": "string"}}),
		},
		// An elder's approved family, listed by name
		{
			Keys: bson.D{
				{Key: "elder_id", Value: 1},
				{Key: "is_approved", Value: 1},
				{Key: "name_ci", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName("idx_users_elder_approved_nameci_id"),
		},
	})
}

func ensureElders(ctx context.Context, db *mongo.Database) error {
	// _id is the elder's user id; membership checks hit the multikey index
	return ensureIndexSet(ctx, db.Collection("elders"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "assigned_family_ids", Value: 1}},
			Options: options.Index().SetName("idx_elders_assigned_family"),
		},
	})
}

func ensurePendingRequests(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("pending_requests"), []mongo.IndexModel{
		// One request per (elder, family)
		{
			Keys:    bson.D{{Key: "elder_id", Value: 1}, {Key: "family_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_pending_elder_family"),
		},
		// Pending list in arrival order
		{
			Keys:    bson.D{{Key: "elder_id", Value: 1}, {Key: "requested_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_pending_elder_requestedat_id"),
		},
		// Cleanup when a family record goes away
		{
			Keys:    bson.D{{Key: "family_id", Value: 1}},
			Options: options.Index().SetName("idx_pending_family"),
		},
	})
}

func ensureIdentities(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("identities"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_identities_email"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "elder_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_elder_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_type_timestamp"),
		},
	})
}
