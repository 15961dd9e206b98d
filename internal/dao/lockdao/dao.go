// Package lockdao serializes deploys of a service to a stage. Locks live in the
// deployments table under their own partition so they never appear in history
// queries.
package lockdao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/savaki/ddb/v2"
)

const (
	lockPrefix = "lock"
	lockSK     = "LOCK"

	// DefaultTTL expires a lock left behind by a crashed deploy
	DefaultTTL = time.Hour
)

// PK represents the partition key: lock/{Stage}/{Service}
type PK string

// NewPK creates a partition key from stage and service
func NewPK(stage, service string) PK {
	return PK(fmt.Sprintf("%s/%s/%s", lockPrefix, stage, service))
}

// ParsePK parses a partition key into stage and service components
func ParsePK(pk PK) (stage, service string, err error) {
	parts := strings.Split(string(pk), "/")
	if len(parts) != 3 || parts[0] != lockPrefix {
		return "", "", fmt.Errorf("invalid PK format: %s, expected lock/{stage}/{service}", pk)
	}
	return parts[1], parts[2], nil
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// Record is a held lock
type Record struct {
	PK         PK     `ddb:"hash" dynamodbav:"pk"`  // lock/{Stage}/{Service}
	SK         string `ddb:"range" dynamodbav:"sk"` // Always "LOCK"
	Holder     string `dynamodbav:"holder"`         // KSUID of the deploy holding the lock
	StackName  string `dynamodbav:"stack_name"`
	AcquiredAt int64  `dynamodbav:"acquired_at"` // Unix timestamp
	TTL        int64  `dynamodbav:"ttl"`         // Unix timestamp for DynamoDB TTL expiry
}

// Expired reports whether the lock outlived its TTL at now
func (r *Record) Expired(now time.Time) bool {
	return r.TTL > 0 && now.Unix() >= r.TTL
}

// AcquireInput contains fields for acquiring a lock
type AcquireInput struct {
	Stage     string
	Service   string
	Holder    string
	StackName string
}

// ReleaseInput contains fields for releasing a lock
type ReleaseInput struct {
	Stage   string
	Service string
	Holder  string // must match the lock holder
}

// DAO provides data access operations for deploy locks
type DAO struct {
	table *ddb.Table
	ttl   time.Duration
	now   func() time.Time
}

// New creates a new DAO instance over the deployments table
func New(api ddb.DynamoDBAPI, tableName string) *DAO {
	db := ddb.New(api)
	return &DAO{
		table: db.MustTable(tableName, &Record{}),
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// acquireAttempts bounds retries when the lock is released between a failed put and
// the read of its holder
const acquireAttempts = 3

// Acquire takes the lock for stage and service with a conditional put, so two deploys
// racing for a free lock cannot both win. It returns the current holder and false
// when another deploy holds an unexpired lock. Re-acquiring with the same holder
// succeeds and extends the TTL.
func (d *DAO) Acquire(ctx context.Context, input AcquireInput) (*Record, bool, error) {
	for range acquireAttempts {
		now := d.now()
		record := &Record{
			PK:         NewPK(input.Stage, input.Service),
			SK:         lockSK,
			Holder:     input.Holder,
			StackName:  input.StackName,
			AcquiredAt: now.Unix(),
			TTL:        now.Add(d.ttl).Unix(),
		}

		err := d.table.Put(record).
			Condition("attribute_not_exists(#PK) OR #TTL <= ? OR #Holder = ?", now.Unix(), input.Holder).
			RunWithContext(ctx)
		if err == nil {
			return record, true, nil
		}
		if !isConditionFailed(err) {
			return nil, false, fmt.Errorf("failed to create lock: %w", err)
		}

		current, err := d.Find(ctx, input.Stage, input.Service)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read lock holder: %w", err)
		}
		if current != nil {
			return current, false, nil
		}
	}

	return nil, false, nil
}

// Find returns the lock for stage and service, or nil when none is held
func (d *DAO) Find(ctx context.Context, stage, service string) (*Record, error) {
	var record Record
	err := d.table.Get(NewPK(stage, service).String()).
		Range(lockSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}

	return &record, nil
}

// Release drops the lock only while input.Holder still holds it. Releasing a free
// lock is a no-op; releasing one taken over by another deploy is an error.
func (d *DAO) Release(ctx context.Context, input ReleaseInput) error {
	err := d.table.Delete(NewPK(input.Stage, input.Service).String()).
		Range(lockSK).
		Condition("#Holder = ?", input.Holder).
		RunWithContext(ctx)
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	current, err := d.Find(ctx, input.Stage, input.Service)
	if err != nil {
		return fmt.Errorf("failed to check lock: %w", err)
	}
	if current == nil {
		return nil
	}
	return fmt.Errorf("lock not held by %s (held by %s)", input.Holder, current.Holder)
}

// Delete removes the lock regardless of holder
func (d *DAO) Delete(ctx context.Context, stage, service string) error {
	err := d.table.Delete(NewPK(stage, service).String()).
		Range(lockSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
