package domain

import (
	"context"
	"time"
)

// MaxRiskLevel is the highest name list severity.
const MaxRiskLevel = 5

// ListType classifies a name list entry.
type ListType int

const (
	ListTypeBlacklist ListType = 1
	ListTypeWhitelist ListType = 2
	ListTypeGraylist  ListType = 3
)

func (t ListType) Valid() bool { return t >= ListTypeBlacklist && t <= ListTypeGraylist }

// BusinessLine is the product line an entry was raised for.
type BusinessLine int

const (
	BusinessLineConsumer  BusinessLine = 1
	BusinessLineHousing   BusinessLine = 2
	BusinessLineAuto      BusinessLine = 3
	BusinessLineEducation BusinessLine = 4
	BusinessLineBusiness  BusinessLine = 5
	BusinessLineOther     BusinessLine = 9
)

func (b BusinessLine) Valid() bool {
	return (b >= BusinessLineConsumer && b <= BusinessLineBusiness) || b == BusinessLineOther
}

// RiskLabel is the category of risk behind an entry.
type RiskLabel int

const (
	RiskLabelFraud      RiskLabel = 1
	RiskLabelCredit     RiskLabel = 2
	RiskLabelCompliance RiskLabel = 3
	RiskLabelOperations RiskLabel = 4
)

func (l RiskLabel) Valid() bool { return l >= RiskLabelFraud && l <= RiskLabelOperations }

// RiskDomain is the kind of subject an entry describes.
type RiskDomain int

const (
	RiskDomainPersonal  RiskDomain = 1
	RiskDomainCorporate RiskDomain = 2
	RiskDomainDevice    RiskDomain = 3
	RiskDomainOther     RiskDomain = 4
)

func (d RiskDomain) Valid() bool { return d >= RiskDomainPersonal && d <= RiskDomainOther }

// ValueType identifies what kind of identifier Value holds.
type ValueType int

const (
	ValueTypeIDNumber ValueType = 1
	ValueTypePhone    ValueType = 2
	ValueTypeQQ       ValueType = 3
	ValueTypeWeChat   ValueType = 4
	ValueTypeBankCard ValueType = 5
	ValueTypeIP       ValueType = 6
	ValueTypeDeviceID ValueType = 7
)

func (v ValueType) Valid() bool { return v >= ValueTypeIDNumber && v <= ValueTypeDeviceID }

// NameListEntry is a flagged identifier. Value and ValueType together are
// the unit compared by exact equality during hit checks.
type NameListEntry struct {
	ID           int64        `json:"id"`
	RuleID       int64        `json:"ruleId"`
	LogID        int64        `json:"logId,omitempty"`
	RiskLevel    int          `json:"riskLevel"`
	ListType     ListType     `json:"listType"`
	BusinessLine BusinessLine `json:"businessLine"`
	RiskLabel    RiskLabel    `json:"riskLabel"`
	RiskDomain   RiskDomain   `json:"riskDomain"`
	Value        string       `json:"value"`
	ValueType    ValueType    `json:"valueType"`
	Creator      string       `json:"creator"`
	CreatedAt    time.Time    `json:"createdAt"`

	// Populated on reads joined with the originating rule.
	RuleName       string `json:"ruleName,omitempty"`
	RuleExpression string `json:"ruleExpression,omitempty"`
}

// NameListFilter narrows SearchEntries. Zero values are ignored.
// ValueContains is a substring match and is only used for search screens,
// never for hit checks.
type NameListFilter struct {
	ValueContains string
	BusinessLine  BusinessLine
	RiskDomain    RiskDomain
	RiskLabel     RiskLabel
	ValueType     ValueType
}

// NameListStore persists blacklist, whitelist and graylist entries.
type NameListStore interface {
	ListEntries(ctx context.Context) ([]*NameListEntry, error)
	SearchEntries(ctx context.Context, filter NameListFilter) ([]*NameListEntry, error)
	GetEntry(ctx context.Context, id int64) (*NameListEntry, error)

	// CheckHit returns entries whose value equals value exactly and, when
	// valueType is non-nil, whose value type equals *valueType.
	CheckHit(ctx context.Context, value string, valueType *ValueType) ([]*NameListEntry, error)

	// AddEntry inserts the entry and sets its ID and CreatedAt.
	AddEntry(ctx context.Context, entry *NameListEntry) (int64, error)
	DeleteEntry(ctx context.Context, id int64) error
}
