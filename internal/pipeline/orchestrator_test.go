package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/extract"
)

const (
	invoiceText = "INVOICE\nInvoice No: 1234\nDue Date: 2024-05-01\nAmount Due: $150.00"
	receiptText = "Receipt — PAID ₦2,000 POS"
)

// stubRecognizer "reads" an image by returning its payload; payload "corrupt" fails.
type stubRecognizer struct{}

func (stubRecognizer) Recognize(_ context.Context, images []entity.FileDescriptor) extract.RecognitionResult {
	res := extract.RecognitionResult{Texts: []string{}, Items: make([]extract.ItemOutcome, len(images))}
	for i, img := range images {
		res.Items[i] = extract.ItemOutcome{Index: i, MediaType: img.MediaType}
		if string(img.Payload) == "corrupt" {
			res.Items[i].Err = errors.New("unreadable image")
			continue
		}
		res.Texts = append(res.Texts, string(img.Payload))
		res.Items[i].Chars = len(img.Payload)
	}
	return res
}

func textFile(s string) entity.FileDescriptor {
	return entity.FileDescriptor{Kind: constants.FileKindText, MediaType: constants.MediaTypeTextPlain, Payload: []byte(s)}
}

func image(s string) entity.FileDescriptor {
	return entity.FileDescriptor{Kind: constants.FileKindFile, MediaType: constants.MediaTypePNG, Payload: []byte(s)}
}

func testStages() Stages {
	return NewStages(stubRecognizer{}, extract.NewDecoder(nil, nil), nil)
}

func newTestOrchestrator(files []entity.FileDescriptor, opts ...Option) *Orchestrator {
	opts = append([]Option{WithEventBuffer(1024)}, opts...)
	return NewOrchestrator(files, testStages(), opts...)
}

func drain(o *Orchestrator) []events.ToolEvent {
	var out []events.ToolEvent
	for ev := range o.Events() {
		out = append(out, ev)
	}
	return out
}

func propose(t *testing.T, o *Orchestrator, stages ...constants.Stage) {
	t.Helper()
	for _, st := range stages {
		_, err := o.Propose(context.Background(), Proposal{Stage: st})
		require.NoError(t, err, "stage %s", st)
	}
}

func TestOrchestrator_InvoiceTextEndToEnd(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	require.NoError(t, Drive(context.Background(), o, CanonicalProposer{}))

	assert.Equal(t, constants.RunStateDone, o.State())
	payload, err := o.Result()
	require.NoError(t, err)
	require.Len(t, payload.Classification, 1)
	r := payload.Classification[0]
	assert.Equal(t, constants.Invoice, r.Classification)
	f, ok := r.Fields.(entity.InvoiceFields)
	require.True(t, ok)
	assert.Equal(t, "1234", *f.InvoiceNumber)
	assert.Equal(t, "2024-05-01", *f.DueDate)
	assert.Equal(t, "150.00", *f.TotalAmount)
	assert.Equal(t, 5, o.Snapshot().Steps)
}

func TestOrchestrator_ReceiptImageEndToEnd(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{image(receiptText)})
	require.NoError(t, Drive(context.Background(), o, CanonicalProposer{}))

	payload, err := o.Result()
	require.NoError(t, err)
	require.Len(t, payload.Classification, 1)
	f, ok := payload.Classification[0].Fields.(entity.ReceiptFields)
	require.True(t, ok)
	assert.Equal(t, "2,000", *f.TotalPaid)
	assert.Equal(t, "POS", *f.PaymentMethod)
}

func TestOrchestrator_EventOrdering(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{image(receiptText), textFile(invoiceText)}, WithVerbose(true))
	require.NoError(t, Drive(context.Background(), o, CanonicalProposer{}))
	evs := drain(o)
	require.NotEmpty(t, evs)

	var stageOrder []constants.Stage
	correlation := map[int]string{}
	var lastSeq int64
	for i, ev := range evs {
		assert.Equal(t, o.RunID().String(), ev.RunID)
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq

		if id, ok := correlation[ev.Step]; ok {
			assert.Equal(t, id, ev.CorrelationID)
		} else {
			correlation[ev.Step] = ev.CorrelationID
		}

		switch ev.Type {
		case events.Started:
			stageOrder = append(stageOrder, ev.Stage)
		case events.Progress:
			require.Greater(t, i, 0)
			assert.Equal(t, ev.Stage, stageOrder[len(stageOrder)-1])
			assert.NotNil(t, ev.Payload["detail"])
		case events.Completed:
			assert.Equal(t, ev.Stage, stageOrder[len(stageOrder)-1])
			assert.NotNil(t, ev.Payload["summary"])
			if i+1 < len(evs) {
				assert.Equal(t, events.Started, evs[i+1].Type)
			}
		}
	}
	assert.Equal(t, constants.CanonicalStages, stageOrder)
	assert.Len(t, correlation, 5)
	assert.Equal(t, events.Completed, evs[len(evs)-1].Type)
}

func TestOrchestrator_OrderingViolations(t *testing.T) {
	tests := []struct {
		name   string
		before []constants.Stage
		next   Proposal
	}{
		{"ocr first", nil, Proposal{Stage: constants.StageOCR}},
		{"merge first", nil, Proposal{Stage: constants.StageMerge}},
		{"classify first", nil, Proposal{Stage: constants.StageClassify}},
		{"extract first", nil, Proposal{Stage: constants.StageExtract}},
		{"unknown stage", nil, Proposal{Stage: "summarize"}},
		{"merge skips ocr with images", []constants.Stage{constants.StageSeparate}, Proposal{Stage: constants.StageMerge}},
		{"extract before classify", []constants.Stage{constants.StageSeparate, constants.StageOCR, constants.StageMerge}, Proposal{Stage: constants.StageExtract}},
		{"classify foreign texts", []constants.Stage{constants.StageSeparate, constants.StageOCR, constants.StageMerge}, Proposal{Stage: constants.StageClassify, Texts: []string{"something else"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator([]entity.FileDescriptor{image(receiptText), textFile(invoiceText)})
			propose(t, o, tt.before...)

			_, err := o.Propose(context.Background(), tt.next)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrOrderingViolation)
			assert.Equal(t, common.KindOrderingViolation, common.KindOf(err))
			assert.Equal(t, constants.RunStateFailed, o.State())

			_, err = o.Propose(context.Background(), Proposal{Stage: constants.StageSeparate})
			assert.ErrorIs(t, err, common.ErrRunFinished)
		})
	}
}

func TestOrchestrator_ExtractForeignUnits(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	propose(t, o, constants.StageSeparate, constants.StageOCR, constants.StageMerge, constants.StageClassify)

	_, err := o.Propose(context.Background(), Proposal{Stage: constants.StageExtract, Units: []entity.DocumentUnit{{Text: "x", Classification: constants.Receipt}}})
	assert.Equal(t, common.KindOrderingViolation, common.KindOf(err))
}

func TestOrchestrator_MergeWithoutOCRWhenNoImages(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(receiptText)})
	propose(t, o, constants.StageSeparate, constants.StageMerge, constants.StageClassify, constants.StageExtract)
	assert.Equal(t, constants.RunStateDone, o.State())
	assert.Equal(t, 4, o.Snapshot().Steps)
}

func TestOrchestrator_StepBound(t *testing.T) {
	for _, bound := range []int{1, 3, DefaultStepBound} {
		o := newTestOrchestrator([]entity.FileDescriptor{textFile("hello")}, WithStepBound(bound))
		for i := 0; i < bound; i++ {
			_, err := o.Propose(context.Background(), Proposal{Stage: constants.StageSeparate})
			require.NoError(t, err)
		}
		_, err := o.Propose(context.Background(), Proposal{Stage: constants.StageSeparate})
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrStepBoundExceeded)
		assert.Equal(t, common.KindStepBoundExceeded, common.KindOf(err))
		assert.Equal(t, constants.RunStateFailed, o.State())
	}
}

func TestOrchestrator_StepBoundStopsCanonicalRun(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)}, WithStepBound(4))
	err := Drive(context.Background(), o, CanonicalProposer{})
	assert.Equal(t, common.KindStepBoundExceeded, common.KindOf(err))
	_, err = o.Result()
	assert.Error(t, err)
}

func TestOrchestrator_RerunResetsLaterStages(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	propose(t, o, constants.StageSeparate, constants.StageOCR, constants.StageMerge, constants.StageClassify)
	require.True(t, o.Snapshot().HasCompleted(constants.StageClassify))

	propose(t, o, constants.StageSeparate)
	snap := o.Snapshot()
	assert.Equal(t, []constants.Stage{constants.StageSeparate}, snap.Completed)
	assert.Nil(t, snap.Units)
	assert.Nil(t, snap.Classified)

	_, err := o.Propose(context.Background(), Proposal{Stage: constants.StageClassify})
	assert.Equal(t, common.KindOrderingViolation, common.KindOf(err))
}

func TestOrchestrator_FinishIncomplete(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	propose(t, o, constants.StageSeparate)

	err := o.Finish(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrIncomplete)
	assert.Equal(t, common.KindIncomplete, common.KindOf(err))
	assert.Equal(t, common.KindIncomplete, o.Snapshot().ErrorKind)
}

func TestOrchestrator_SequenceProposerStopsEarly(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	err := Drive(context.Background(), o, NewSequenceProposer(constants.StageSeparate, constants.StageOCR))
	assert.Equal(t, common.KindIncomplete, common.KindOf(err))
}

func TestOrchestrator_Canceled(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Drive(ctx, o, CanonicalProposer{})
	require.Error(t, err)
	assert.Equal(t, common.KindCanceled, common.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, constants.RunStateFailed, o.State())
}

func TestOrchestrator_Abort(t *testing.T) {
	o := newTestOrchestrator(nil)
	err := o.Abort(common.PreconditionFailed("upload directory missing"))
	assert.Equal(t, common.KindPreconditionFailed, common.KindOf(err))
	assert.Equal(t, common.KindPreconditionFailed, common.KindOf(o.Err()))
	assert.Empty(t, drain(o))
}

func TestOrchestrator_OCRPartialFailure(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{image(receiptText), image("corrupt"), textFile(invoiceText)})
	require.NoError(t, Drive(context.Background(), o, CanonicalProposer{}))

	snap := o.Snapshot()
	assert.Equal(t, []string{receiptText}, snap.Texts)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, constants.Receipt, snap.Results[0].Classification)
	assert.Equal(t, constants.Invoice, snap.Results[1].Classification)

	var failedEvents int
	for _, ev := range drain(o) {
		if ev.Type == events.Progress && ev.Stage == constants.StageOCR {
			if d, ok := ev.Payload["detail"].(map[string]any); ok && d["event"] == "image-failed" {
				failedEvents++
			}
		}
		if ev.Type == events.Completed && ev.Stage == constants.StageOCR {
			summary := ev.Payload["summary"].(map[string]any)
			assert.Equal(t, 1, summary["failed"])
			assert.Equal(t, 1, summary["recognized"])
		}
	}
	assert.Equal(t, 1, failedEvents)
}

func TestOrchestrator_AllImagesFail(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{image("corrupt"), image("corrupt")})
	require.NoError(t, Drive(context.Background(), o, CanonicalProposer{}))

	payload, err := o.Result()
	require.NoError(t, err)
	assert.NotNil(t, payload.Classification)
	assert.Empty(t, payload.Classification)
}

func TestOrchestrator_SnapshotAt(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	propose(t, o, constants.StageSeparate, constants.StageOCR, constants.StageMerge)

	snap, ok := o.SnapshotAt(2)
	require.True(t, ok)
	assert.Equal(t, []constants.Stage{constants.StageSeparate, constants.StageOCR}, snap.Completed)
	assert.Nil(t, snap.Units)
	assert.Empty(t, snap.Partial().Classification)

	_, ok = o.SnapshotAt(9)
	assert.False(t, ok)
}

func TestOrchestrator_ImageInvoiceAndTextReceipt(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{image(invoiceText), textFile(receiptText)})
	require.NoError(t, Drive(context.Background(), o, CanonicalProposer{}))

	payload, err := o.Result()
	require.NoError(t, err)
	require.Len(t, payload.Classification, 2)

	assert.Equal(t, constants.Invoice, payload.Classification[0].Classification)
	inv, ok := payload.Classification[0].Fields.(entity.InvoiceFields)
	require.True(t, ok)
	require.NotNil(t, inv.InvoiceNumber)
	require.NotNil(t, inv.DueDate)
	require.NotNil(t, inv.TotalAmount)
	assert.Equal(t, "1234", *inv.InvoiceNumber)
	assert.Equal(t, "2024-05-01", *inv.DueDate)
	assert.Equal(t, "150.00", *inv.TotalAmount)

	assert.Equal(t, constants.Receipt, payload.Classification[1].Classification)
	rec, ok := payload.Classification[1].Fields.(entity.ReceiptFields)
	require.True(t, ok)
	require.NotNil(t, rec.TotalPaid)
	require.NotNil(t, rec.PaymentMethod)
	assert.Equal(t, "2,000", *rec.TotalPaid)
	assert.Equal(t, "POS", *rec.PaymentMethod)
}

func TestOrchestrator_PartialAfterClassify(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText), textFile("Meeting notes")})
	propose(t, o, constants.StageSeparate, constants.StageOCR, constants.StageMerge, constants.StageClassify)

	partial := o.Snapshot().Partial().Classification
	require.Len(t, partial, 2)
	assert.Equal(t, constants.Invoice, partial[0].Classification)
	assert.Equal(t, entity.InvoiceFields{}, partial[0].Fields)
	assert.Equal(t, constants.Unknown, partial[1].Classification)
	assert.Equal(t, entity.UnknownFields{RawTextPreview: "Meeting notes"}, partial[1].Fields)
}

func TestOrchestrator_ExtractAcceptsRestatedUnits(t *testing.T) {
	o := newTestOrchestrator([]entity.FileDescriptor{textFile(invoiceText)})
	propose(t, o, constants.StageSeparate, constants.StageOCR, constants.StageMerge, constants.StageClassify)

	_, err := o.Propose(context.Background(), Proposal{
		Stage: constants.StageExtract,
		Units: []entity.DocumentUnit{{Text: invoiceText, Classification: "Invoice"}},
	})
	require.NoError(t, err)
	assert.Equal(t, constants.RunStateDone, o.State())
}
