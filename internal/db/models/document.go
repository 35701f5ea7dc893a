package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type DocumentStatus string

const (
	StatusDraft DocumentStatus = "draft"
	StatusFinal DocumentStatus = "final"
)

type Document struct {
	ID          string         `gorm:"primaryKey" json:"id" dynamodbav:"id"`
	UserID      string         `gorm:"index;not null" json:"userId" dynamodbav:"userId"`
	FileName    string         `gorm:"not null" json:"fileName" dynamodbav:"fileName"`
	Name        string         `json:"name" dynamodbav:"name"`
	URL         string         `json:"url" dynamodbav:"url"`
	OriginalURL string         `json:"originalUrl" dynamodbav:"originalUrl"`
	FinalURL    string         `json:"finalUrl,omitempty" dynamodbav:"finalUrl,omitempty"`
	ContentType string         `json:"contentType,omitempty" dynamodbav:"contentType,omitempty"`
	Status      DocumentStatus `gorm:"not null;default:'draft'" json:"status" dynamodbav:"status"`
	Annotations datatypes.JSON `json:"annotations" dynamodbav:"annotations"`
	Signatures  datatypes.JSON `json:"signatures" dynamodbav:"signatures"`

	ApprovedBySignature *string    `json:"approvedBySignature,omitempty" dynamodbav:"approvedBySignature,omitempty"`
	IssuedBySignature   *string    `json:"issuedBySignature,omitempty" dynamodbav:"issuedBySignature,omitempty"`
	ApprovedBy          *string    `json:"approvedBy,omitempty" dynamodbav:"approvedBy,omitempty"`
	IssuedBy            *string    `json:"issuedBy,omitempty" dynamodbav:"issuedBy,omitempty"`
	ApprovedAt          *time.Time `json:"approvedAt,omitempty" dynamodbav:"approvedAt,omitempty"`
	IssuedAt            *time.Time `json:"issuedAt,omitempty" dynamodbav:"issuedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

func (d *Document) GetAnnotations() ([]Annotation, error) {
	out := []Annotation{}
	if len(d.Annotations) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(d.Annotations, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Document) GetSignatures() ([]Signature, error) {
	out := []Signature{}
	if len(d.Signatures) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(d.Signatures, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApprovalStatus is the label shown next to the approval sub-record.
func (d *Document) ApprovalStatus() string {
	approved := d.ApprovedBySignature != nil && *d.ApprovedBySignature != ""
	issued := d.IssuedBySignature != nil && *d.IssuedBySignature != ""
	switch {
	case approved && issued:
		return "Approved & Issued"
	case approved:
		return "Approved"
	default:
		return "Pending"
	}
}

// DocumentPatch is a partial update. Nil fields are left untouched.
type DocumentPatch struct {
	Name        *string
	URL         *string
	FinalURL    *string
	Status      *DocumentStatus
	Annotations []Annotation
	Signatures  []Signature

	ApprovedBySignature *string
	IssuedBySignature   *string
	ApprovedBy          *string
	IssuedBy            *string
	ApprovedAt          *time.Time
	IssuedAt            *time.Time
}

// Columns flattens the patch into column name/value pairs. UpdatedAt is
// stamped by the store, not here.
func (p DocumentPatch) Columns() (map[string]interface{}, error) {
	cols := make(map[string]interface{})
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.URL != nil {
		cols["url"] = *p.URL
	}
	if p.FinalURL != nil {
		cols["final_url"] = *p.FinalURL
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.Annotations != nil {
		raw, err := json.Marshal(p.Annotations)
		if err != nil {
			return nil, err
		}
		cols["annotations"] = datatypes.JSON(raw)
	}
	if p.Signatures != nil {
		raw, err := json.Marshal(p.Signatures)
		if err != nil {
			return nil, err
		}
		cols["signatures"] = datatypes.JSON(raw)
	}
	if p.ApprovedBySignature != nil {
		cols["approved_by_signature"] = *p.ApprovedBySignature
	}
	if p.IssuedBySignature != nil {
		cols["issued_by_signature"] = *p.IssuedBySignature
	}
	if p.ApprovedBy != nil {
		cols["approved_by"] = *p.ApprovedBy
	}
	if p.IssuedBy != nil {
		cols["issued_by"] = *p.IssuedBy
	}
	if p.ApprovedAt != nil {
		cols["approved_at"] = *p.ApprovedAt
	}
	if p.IssuedAt != nil {
		cols["issued_at"] = *p.IssuedAt
	}
	return cols, nil
}

// Apply mutates d in place with the non-nil fields of p.
func (p DocumentPatch) Apply(d *Document) error {
	cols, err := p.Columns()
	if err != nil {
		return err
	}
	for col, v := range cols {
		switch col {
		case "name":
			d.Name = v.(string)
		case "url":
			d.URL = v.(string)
		case "final_url":
			d.FinalURL = v.(string)
		case "status":
			d.Status = v.(DocumentStatus)
		case "annotations":
			d.Annotations = v.(datatypes.JSON)
		case "signatures":
			d.Signatures = v.(datatypes.JSON)
		case "approved_by_signature":
			s := v.(string)
			d.ApprovedBySignature = &s
		case "issued_by_signature":
			s := v.(string)
			d.IssuedBySignature = &s
		case "approved_by":
			s := v.(string)
			d.ApprovedBy = &s
		case "issued_by":
			s := v.(string)
			d.IssuedBy = &s
		case "approved_at":
			t := v.(time.Time)
			d.ApprovedAt = &t
		case "issued_at":
			t := v.(time.Time)
			d.IssuedAt = &t
		}
	}
	return nil
}
