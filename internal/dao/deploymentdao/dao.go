package deploymentdao

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/segmentio/ksuid"
)

// TableName returns the default deployments table for stage
func TableName(stage string) string {
	return fmt.Sprintf("appsync-deployer-%s-deployments", stage)
}

// PK represents the partition key: {Stage}/{Service}
type PK string

// NewPK creates a partition key from stage and service
func NewPK(stage, service string) PK {
	return PK(fmt.Sprintf("%s/%s", stage, service))
}

// ParsePK parses a partition key into stage and service components
func ParsePK(pk PK) (stage, service string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {stage}/{service}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation
func (pk PK) String() string {
	return string(pk)
}

// ID identifies a deployment as {stage}/{service}:{ksuid}
// Example: dev/simple-serverless-service:2GCfXj0ZQcnl2Vtk7XTNN4rMwkK
type ID string

// NewID creates an ID from a partition key and deployment ksuid
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ParseID parses an ID into its partition and sort keys
func ParseID(id ID) (PK, string, error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid ID format: %s, expected {stage}/{service}:{ksuid}", s)
	}

	pk := PK(parts[0])
	if _, _, err := ParsePK(pk); err != nil {
		return "", "", err
	}
	if _, err := ksuid.Parse(parts[1]); err != nil {
		return "", "", fmt.Errorf("invalid SK in ID: %s: %w", parts[1], err)
	}

	return pk, parts[1], nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// DeploymentStatus represents the status of a deployment
type DeploymentStatus string

const (
	StatusPending    DeploymentStatus = "PENDING"
	StatusInProgress DeploymentStatus = "IN_PROGRESS"
	StatusSuccess    DeploymentStatus = "SUCCESS"
	StatusFailed     DeploymentStatus = "FAILED"
)

// Terminal reports whether no further updates are expected
func (s DeploymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Record is one deploy of a service to a stage
type Record struct {
	PK            PK               `ddb:"hash" dynamodbav:"pk"`           // {Stage}/{Service}
	SK            string           `ddb:"range" dynamodbav:"sk"`          // KSUID, sorts by creation time
	StackName     string           `dynamodbav:"stack_name"`              // CloudFormation stack name
	StackID       string           `dynamodbav:"stack_id,omitempty"`      // CloudFormation stack ID
	Operation     string           `dynamodbav:"operation,omitempty"`     // CREATE|UPDATE|NONE
	Status        DeploymentStatus `dynamodbav:"status"`                  // PENDING|IN_PROGRESS|SUCCESS|FAILED
	ResolverCount int              `dynamodbav:"resolver_count"`          // Resolvers in the template
	TemplateSHA   string           `dynamodbav:"template_sha256"`         // sha256 of the template body
	CodeKey       string           `dynamodbav:"code_key,omitempty"`      // S3 key of the code bundle
	StatusReason  string           `dynamodbav:"status_reason,omitempty"` // CF status reason or error
	FailedEvents  []string         `dynamodbav:"failed_events,omitempty"` // Recent failed stack events
	CreatedAt     int64            `dynamodbav:"created_at"`              // Unix timestamp
	UpdatedAt     int64            `dynamodbav:"updated_at"`              // Unix timestamp
	FinishedAt    int64            `dynamodbav:"finished_at,omitempty"`   // Unix timestamp
}

// GetID returns the ID for this record
func (r *Record) GetID() ID {
	return NewID(r.PK, r.SK)
}

// CreateInput contains fields for creating a deployment record
type CreateInput struct {
	Stage         string
	Service       string
	StackName     string
	ResolverCount int
	TemplateSHA   string
	CodeKey       string
}

// DAO provides data access operations for deployment history
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create records a new deployment with PENDING status
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:            NewPK(input.Stage, input.Service),
		SK:            ksuid.New().String(),
		StackName:     input.StackName,
		Status:        StatusPending,
		ResolverCount: input.ResolverCount,
		TemplateSHA:   input.TemplateSHA,
		CodeKey:       input.CodeKey,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create deployment record: %w", err)
	}

	return record, nil
}

// Find retrieves a deployment record by ID
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("deployment record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to get deployment: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("deployment record not found: %s", id)
	}

	return record, nil
}

// UpdateInput contains fields for updating a deployment record
type UpdateInput struct {
	ID           ID
	Status       DeploymentStatus
	StackID      string
	Operation    string
	StatusReason string
	FailedEvents []string
}

// UpdateStatus updates a deployment record with a new status and outcome details
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	pk, sk, err := ParseID(input.ID)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(input.Status)).
		Set("#UpdatedAt = ?", now)

	if input.StackID != "" {
		update = update.Set("#StackID = ?", input.StackID)
	}

	if input.Operation != "" {
		update = update.Set("#Operation = ?", input.Operation)
	}

	if input.StatusReason != "" {
		update = update.Set("#StatusReason = ?", input.StatusReason)
	}

	if len(input.FailedEvents) > 0 {
		update = update.Set("#FailedEvents = ?", input.FailedEvents)
	}

	if input.Status.Terminal() {
		update = update.Set("#FinishedAt = ?", now)
	}

	err = update.RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update deployment status: %w", err)
	}

	return nil
}

// QueryByPK returns the deployments of service to stage, newest first. A positive
// limit caps the number returned.
func (d *DAO) QueryByPK(ctx context.Context, stage, service string, limit int) ([]Record, error) {
	pk := NewPK(stage, service)
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}

	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(b.SK, a.SK)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}
