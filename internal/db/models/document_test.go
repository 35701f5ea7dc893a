package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestDocumentPatchColumns(t *testing.T) {
	final := StatusFinal
	p := DocumentPatch{
		Status:      &final,
		Annotations: []Annotation{{ID: "a1", Type: AnnotationHighlight, X: 1, Y: 2, Page: 1}},
	}
	cols, err := p.Columns()
	require.NoError(t, err)
	assert.Len(t, cols, 2)
	assert.Equal(t, StatusFinal, cols["status"])
	assert.Contains(t, string(cols["annotations"].([]byte)), `"id":"a1"`)
}

func TestDocumentPatchEmptyCollectionIsWritten(t *testing.T) {
	cols, err := DocumentPatch{Signatures: []Signature{}}.Columns()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(cols["signatures"].([]byte)))
}

func TestDocumentPatchApply(t *testing.T) {
	now := time.Now()
	doc := &Document{ID: "d1", Name: "old", Status: StatusDraft}
	err := DocumentPatch{
		Name:                strPtr("new"),
		ApprovedBySignature: strPtr("data:image/png;base64,AAA"),
		ApprovedAt:          &now,
		Signatures:          []Signature{{ID: "s1", Page: 2, Width: 200, Height: 80}},
	}.Apply(doc)
	require.NoError(t, err)

	assert.Equal(t, "new", doc.Name)
	assert.Equal(t, StatusDraft, doc.Status)
	require.NotNil(t, doc.ApprovedAt)
	assert.True(t, doc.ApprovedAt.Equal(now))

	sigs, err := doc.GetSignatures()
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, 2, sigs[0].Page)
}

func TestApprovalStatus(t *testing.T) {
	doc := &Document{}
	assert.Equal(t, "Pending", doc.ApprovalStatus())

	doc.ApprovedBySignature = strPtr("img")
	assert.Equal(t, "Approved", doc.ApprovalStatus())

	doc.IssuedBySignature = strPtr("img")
	assert.Equal(t, "Approved & Issued", doc.ApprovalStatus())
}

func TestGetAnnotationsEmpty(t *testing.T) {
	doc := &Document{}
	anns, err := doc.GetAnnotations()
	require.NoError(t, err)
	assert.NotNil(t, anns)
	assert.Empty(t, anns)
}
