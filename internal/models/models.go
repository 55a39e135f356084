package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Penalties travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// JSONB type for GORM - can handle both objects and arrays
// Using a pointer to interface{} so we can implement both Value() and Scan()
type JSONB struct {
	Data interface{} `json:"-"`
}

// NewJSONB creates a new JSONB from any value
func NewJSONB(v interface{}) JSONB {
	return JSONB{Data: v}
}

// RawJSONB wraps already-encoded JSON so it is stored as-is.
func RawJSONB(raw []byte) JSONB {
	if len(raw) == 0 {
		return JSONB{}
	}
	return JSONB{Data: json.RawMessage(raw)}
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSONB) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.Data)
}

// MarshalJSON implements json.Marshaler
func (j JSONB) MarshalJSON() ([]byte, error) {
	if j.Data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(j.Data)
}

func (j JSONB) Value() (driver.Value, error) {
	if j.Data == nil {
		return nil, nil
	}
	return json.Marshal(j.Data)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		j.Data = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, &j.Data)
}

// JSONList stores a typed slice in a single JSON column.
type JSONList[T any] []T

func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]T(l))
}

func (l *JSONList[T]) Scan(value interface{}) error {
	if value == nil {
		*l = JSONList[T]{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	var items []T
	if err := json.Unmarshal(bytes, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", value)
	}
}

// Rule model - a configured violation policy. Maintained by an external
// administrative process; read-only to the issuance pipeline.
type Rule struct {
	RuleID         string           `gorm:"primaryKey;column:rule_id" json:"rule_id" yaml:"rule_id" validate:"required"`
	ViolationClass string           `gorm:"column:violation_class;index:idx_rule_class_active" json:"violation_class" yaml:"violation_class" validate:"required"`
	MinConfidence  float64          `gorm:"column:min_confidence" json:"min_confidence" yaml:"min_confidence" validate:"gte=0,lte=1"`
	ApplyTo        JSONList[string] `gorm:"type:jsonb;column:apply_to" json:"apply_to" yaml:"apply_to"`
	Penalty        decimal.Decimal  `gorm:"type:numeric(12,2);column:penalty" json:"penalty" yaml:"penalty"`
	Points         int              `gorm:"column:points" json:"points" yaml:"points" validate:"gte=0"`
	Active         bool             `gorm:"column:active;index:idx_rule_class_active" json:"active" yaml:"active"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt" yaml:"-"`
}

func (Rule) TableName() string {
	return "rules"
}

// Owner model - registered owner of one or more vehicles
type Owner struct {
	OwnerID string  `gorm:"primaryKey;column:owner_id" json:"owner_id" yaml:"owner_id" validate:"required"`
	Name    string  `gorm:"column:name" json:"name" yaml:"name"`
	Phone   string  `gorm:"column:phone" json:"phone" yaml:"phone" validate:"omitempty,e164"`
	Email   *string `gorm:"column:email" json:"email,omitempty" yaml:"email"`
	Address *string `gorm:"column:address" json:"address,omitempty" yaml:"address"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt" yaml:"-"`
}

func (Owner) TableName() string {
	return "owners"
}

// Vehicle model - keyed by canonical plate number (uppercase, no spaces)
type Vehicle struct {
	VehicleNo string  `gorm:"primaryKey;column:vehicle_no" json:"vehicle_no" yaml:"vehicle_no" validate:"required"`
	OwnerID   string  `gorm:"column:owner_id;index" json:"owner_id" yaml:"owner_id" validate:"required"`
	Make      *string `gorm:"column:make" json:"make,omitempty" yaml:"make"`
	Model     *string `gorm:"column:model" json:"model,omitempty" yaml:"model"`
	Color     *string `gorm:"column:color" json:"color,omitempty" yaml:"color"`
	Category  string  `gorm:"column:category" json:"category,omitempty" yaml:"category"` // e.g. "two_wheeler"

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt" yaml:"-"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

// Outcome of processing one detection event
type Outcome string

const (
	OutcomeNoRuleTriggered Outcome = "no_rule_triggered"
	OutcomeChallanCreated  Outcome = "challan_created"
	OutcomeManualReview    Outcome = "manual_review"
	OutcomeFailed          Outcome = "failed"
)

// ViolationLog model - raw detection event, persisted verbatim before any processing
type ViolationLog struct {
	ID          string    `gorm:"primaryKey;column:id" json:"id"`
	Source      string    `gorm:"column:source;index" json:"source"`
	Timestamp   time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	ReceivedAt  time.Time `gorm:"column:received_at" json:"received_at"`
	VehicleNo   *string   `gorm:"column:vehicle_no;index" json:"vehicle_no"`
	ImagePath   *string   `gorm:"column:image_path" json:"image_path"`
	Detection   JSONB     `gorm:"type:jsonb;column:detection" json:"detection"`
	Fingerprint string    `gorm:"column:fingerprint;index" json:"fingerprint"`

	Processed bool     `gorm:"column:processed;index" json:"processed"`
	Outcome   *Outcome `gorm:"column:outcome" json:"outcome,omitempty"`
	ChallanNo *string  `gorm:"column:challan_no" json:"challan_no,omitempty"`
	Error     *string  `gorm:"column:error" json:"error,omitempty"`
}

func (ViolationLog) TableName() string {
	return "violation_logs"
}

// CitationStatus enum
type CitationStatus string

const (
	CitationIssued CitationStatus = "issued"
	CitationPaid   CitationStatus = "paid"
	CitationVoid   CitationStatus = "void"
)

// ViolationLine is one rule triggered on a citation
type ViolationLine struct {
	RuleID  string          `json:"rule_id"`
	Class   string          `json:"class,omitempty"`
	Penalty decimal.Decimal `json:"penalty"`
	Points  int             `json:"points"`
	Conf    float64         `json:"conf"`
}

// Notification delivery statuses
const (
	DeliverySent   = "sent"
	DeliveryMocked = "mocked"
	DeliveryError  = "error"
	// DeliveryDeferred marks a notice held back by the per-recipient rate
	// limit; the real attempt follows as its own entry.
	DeliveryDeferred = "deferred"
)

// NotificationEntry is one delivery attempt on a citation's notification log
type NotificationEntry struct {
	Method  string    `json:"method"`
	To      string    `json:"to"`
	Ts      time.Time `json:"ts"`
	Status  string    `json:"status"`
	SID     string    `json:"sid,omitempty"`
	Error   string    `json:"error,omitempty"`
	Attempt int       `json:"attempt"`
}

// Citation model (challan)
type Citation struct {
	ID          int64  `gorm:"primaryKey;autoIncrement;column:id" json:"-"`
	ChallanNo   string `gorm:"column:challan_no;uniqueIndex" json:"challan_no"`
	Fingerprint string `gorm:"column:fingerprint;uniqueIndex" json:"fingerprint"`
	VehicleNo   string `gorm:"column:vehicle_no;index" json:"vehicle_no"`
	OwnerID     string `gorm:"column:owner_id;index" json:"owner_id"`

	Violations   JSONList[ViolationLine] `gorm:"type:jsonb;column:violations" json:"violations"`
	TotalPenalty decimal.Decimal         `gorm:"type:numeric(12,2);column:total_penalty" json:"total_penalty"`
	TotalPoints  int                     `gorm:"column:total_points" json:"total_points"`

	Status   CitationStatus `gorm:"column:status;index" json:"status"`
	IssuedAt time.Time      `gorm:"column:issued_at;index" json:"issued_at"`

	Notified        bool                        `gorm:"column:notified" json:"notified"`
	NotificationLog JSONList[NotificationEntry] `gorm:"type:jsonb;column:notification_log" json:"notification_log"`

	ClosedAt   *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`
	ClosedBy   *string    `gorm:"column:closed_by" json:"closed_by,omitempty"`
	StatusNote *string    `gorm:"column:status_note" json:"status_note,omitempty"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Citation) TableName() string {
	return "challans"
}

// SumPenalties returns the exact sum of the violation penalties.
func (c *Citation) SumPenalties() decimal.Decimal {
	total := decimal.Zero
	for _, v := range c.Violations {
		total = total.Add(v.Penalty)
	}
	return total
}

// ReviewStatus enum
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "manual_review"
)

// ManualReview model - an event whose owner could not be resolved automatically
type ManualReview struct {
	ID          string       `gorm:"primaryKey;column:id" json:"id"`
	Fingerprint string       `gorm:"column:fingerprint;uniqueIndex" json:"fingerprint"`
	Source      string       `gorm:"column:source" json:"source"`
	VehicleNo   *string      `gorm:"column:vehicle_no;index" json:"vehicle_no"`
	Detection   JSONB        `gorm:"type:jsonb;column:detection" json:"detection"`
	Status      ReviewStatus `gorm:"column:status;index" json:"status"`
	Reason      string       `gorm:"column:reason" json:"reason"`
	CreatedAt   time.Time    `gorm:"column:created_at;index" json:"created_at"`
}

func (ManualReview) TableName() string {
	return "manual_reviews"
}
