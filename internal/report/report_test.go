package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/pipeline"
)

func TestRender(t *testing.T) {
	entries := []Entry{
		{Name: "march", Outcome: pipeline.Outcome{State: constants.RunStateDone, Steps: 5, Payload: entity.Payload{Classification: []entity.ClassifiedResult{
			{Classification: constants.Invoice, Fields: entity.InvoiceFields{}},
			{Classification: constants.Receipt, Fields: entity.ReceiptFields{}},
			{Classification: constants.Receipt, Fields: entity.ReceiptFields{}},
		}}}},
		{Name: "april", Outcome: pipeline.Outcome{State: constants.RunStateFailed}, Err: common.PreconditionFailed("upload directory missing")},
	}

	out, err := Render("uploads", entries, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch uploads: 2 runs, 1 succeeded, 1 failed")
	assert.Contains(t, out, "- march [DONE] steps=5 invoices=1 receipts=2 unknown=0")
	assert.Contains(t, out, "- april [FAILED]")
	assert.Contains(t, out, "kind=upstream_precondition_failed")
}

func TestRender_CustomTemplate(t *testing.T) {
	out, err := Render("x", nil, "{{ title }}={{ total }}")
	require.NoError(t, err)
	assert.Equal(t, "x=0", out)
}

func TestRender_BadTemplate(t *testing.T) {
	_, err := Render("x", nil, "{% for %}")
	assert.Error(t, err)
}
