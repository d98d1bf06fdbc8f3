// Package state persists Warden's registered services, rules and failover
// history in BoltDB. All writes are transactional; reads use read-only
// transactions to minimise contention.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/pkg/errs"
)

// Bucket names
var (
	bucketServices  = []byte("services")
	bucketRules     = []byte("rules")
	bucketFailovers = []byte("failovers")
)

// DefaultMaxFailovers is how many failover records are kept per service.
const DefaultMaxFailovers = 1000

// keyTime is a fixed-width timestamp layout so keys sort chronologically.
const keyTime = "2006-01-02T15:04:05.000000000Z"

// DB wraps a BoltDB instance with typed accessor methods.
type DB struct {
	bolt         *bbolt.DB
	maxFailovers int
}

// Open opens (or creates) the state database at path. maxFailovers <= 0
// selects DefaultMaxFailovers.
func Open(path string, maxFailovers int) (*DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStateRead, "state.open").
			WithResource(path).
			WithAdvice("another warden server may be holding the database lock")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketServices, bucketRules, bucketFailovers} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errs.Wrap(err, errs.ErrStateWrite, "state.init")
	}

	if maxFailovers <= 0 {
		maxFailovers = DefaultMaxFailovers
	}
	return &DB{bolt: db, maxFailovers: maxFailovers}, nil
}

// Close closes the underlying BoltDB file.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Services and rules
// ─────────────────────────────────────────────────────────────────────────────

// SaveService upserts a service definition. Rules are stored separately.
func (db *DB) SaveService(spec v1.ServiceSpec) error {
	spec.Rules = nil
	return db.putJSON(bucketServices, spec.Name, spec)
}

// SaveRules replaces the rule set of a service.
func (db *DB) SaveRules(service string, rules []v1.FailoverRule) error {
	return db.putJSON(bucketRules, service, rules)
}

// DeleteService removes a service, its rules and its failover history.
func (db *DB) DeleteService(name string) error {
	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketServices).Delete([]byte(name)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRules).Delete([]byte(name)); err != nil {
			return err
		}
		return deletePrefix(tx.Bucket(bucketFailovers).Cursor(), failoverPrefix(name), -1)
	})
	return wrapWrite(err, "state.delete_service", name)
}

// GetService returns one service with its rules. Returns nil, nil if not found.
func (db *DB) GetService(name string) (*v1.ServiceSpec, error) {
	var spec v1.ServiceSpec
	found, err := db.getJSON(bucketServices, name, &spec)
	if err != nil || !found {
		return nil, err
	}
	if _, err := db.getJSON(bucketRules, name, &spec.Rules); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ListServices returns every stored service, with rules, ordered by name.
func (db *DB) ListServices() ([]v1.ServiceSpec, error) {
	var specs []v1.ServiceSpec
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		rules := tx.Bucket(bucketRules)
		return tx.Bucket(bucketServices).ForEach(func(k, v []byte) error {
			var spec v1.ServiceSpec
			if err := json.Unmarshal(v, &spec); err != nil {
				return fmt.Errorf("unmarshal service %q: %w", k, err)
			}
			if raw := rules.Get(k); raw != nil {
				if err := json.Unmarshal(raw, &spec.Rules); err != nil {
					return fmt.Errorf("unmarshal rules %q: %w", k, err)
				}
			}
			specs = append(specs, spec)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStateRead, "state.list_services")
	}
	return specs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Failover history
// ─────────────────────────────────────────────────────────────────────────────

func failoverPrefix(service string) []byte {
	return []byte(service + "/")
}

func failoverKey(rec v1.FailoverRecord) []byte {
	return []byte(rec.Service + "/" + rec.Timestamp.UTC().Format(keyTime) + "/" + rec.ID)
}

// AppendFailover stores rec and trims the service's history to the retention limit.
func (db *DB) AppendFailover(rec v1.FailoverRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(err, errs.ErrStateWrite, "state.append_failover")
	}
	err = db.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFailovers)
		if err := b.Put(failoverKey(rec), data); err != nil {
			return err
		}
		prefix := failoverPrefix(rec.Service)
		n := 0
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n++
		}
		if excess := n - db.maxFailovers; excess > 0 {
			return deletePrefix(b.Cursor(), prefix, excess)
		}
		return nil
	})
	return wrapWrite(err, "state.append_failover", rec.Service)
}

// ListFailovers returns the most recent records of service, oldest first.
// limit <= 0 returns everything retained.
func (db *DB) ListFailovers(service string, limit int) ([]v1.FailoverRecord, error) {
	var recs []v1.FailoverRecord
	prefix := failoverPrefix(service)
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFailovers).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r v1.FailoverRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal failover %q: %w", k, err)
			}
			recs = append(recs, r)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrStateRead, "state.list_failovers").WithResource(service)
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Generic helpers
// ─────────────────────────────────────────────────────────────────────────────

// deletePrefix removes up to n keys starting with prefix (all when n < 0).
func deletePrefix(c *bbolt.Cursor, prefix []byte, n int) error {
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix) && n != 0; {
		if err := c.Delete(); err != nil {
			return err
		}
		n--
		// Cursor position after Delete is unreliable; re-seek.
		k, _ = c.Seek(prefix)
	}
	return nil
}

func wrapWrite(err error, op, resource string) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(err, errs.ErrStateWrite, op).WithResource(resource)
}

func (db *DB) putJSON(bucket []byte, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errs.Wrap(err, errs.ErrStateWrite, "state.put").WithResource(key)
	}
	err = db.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
	return wrapWrite(err, "state.put", key)
}

func (db *DB) getJSON(bucket []byte, key string, out any) (bool, error) {
	var found bool
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return false, errs.Wrap(err, errs.ErrStateRead, "state.get").WithResource(key)
	}
	return found, nil
}
