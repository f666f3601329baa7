package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/ocr"
)

type fakeEngine struct {
	acquireErr error
	acquired   atomic.Int32
	released   atomic.Int32
}

func (e *fakeEngine) Acquire(ctx context.Context) (ocr.Session, error) {
	if e.acquireErr != nil {
		return nil, e.acquireErr
	}
	e.acquired.Add(1)
	return &fakeSession{engine: e}, nil
}

type fakeSession struct{ engine *fakeEngine }

// Recognize echoes the payload; payloads starting with "bad" fail and those
// starting with "slow" finish last.
func (s *fakeSession) Recognize(_ context.Context, data []byte, _ string) (ocr.Result, error) {
	txt := string(data)
	if strings.HasPrefix(txt, "slow") {
		time.Sleep(20 * time.Millisecond)
	}
	if strings.HasPrefix(txt, "bad") {
		return ocr.Result{}, errors.New("unreadable")
	}
	return ocr.Result{Text: txt, Confidence: 0.5}, nil
}

func (s *fakeSession) Close() error {
	s.engine.released.Add(1)
	return nil
}

func img(payload string) entity.FileDescriptor {
	return entity.FileDescriptor{Kind: constants.FileKindFile, MediaType: constants.MediaTypePNG, Payload: []byte(payload)}
}

func TestOCRAdapter_PreservesOrderAndDropsFailures(t *testing.T) {
	engine := &fakeEngine{}
	a := NewOCRAdapter(engine, 3, nil)

	res := a.Recognize(context.Background(), []entity.FileDescriptor{
		img("slow first"), img("bad one"), img("third"), img("bad two"), img("fifth"),
	})

	assert.Equal(t, []string{"slow first", "third", "fifth"}, res.Texts)
	require.Len(t, res.Items, 5)
	failures := res.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].Index)
	assert.Equal(t, 3, failures[1].Index)
	assert.Equal(t, int32(1), engine.acquired.Load())
	assert.Equal(t, int32(1), engine.released.Load())
}

func TestOCRAdapter_AllFail(t *testing.T) {
	engine := &fakeEngine{}
	a := NewOCRAdapter(engine, 2, nil)

	res := a.Recognize(context.Background(), []entity.FileDescriptor{img("bad"), img("bad")})

	assert.Empty(t, res.Texts)
	assert.NotNil(t, res.Texts)
	assert.Len(t, res.Failures(), 2)
	assert.Equal(t, int32(1), engine.released.Load())
}

func TestOCRAdapter_AcquireFailure(t *testing.T) {
	a := NewOCRAdapter(&fakeEngine{acquireErr: errors.New("no engine")}, 2, nil)

	res := a.Recognize(context.Background(), []entity.FileDescriptor{img("a"), img("b")})

	assert.Empty(t, res.Texts)
	assert.Len(t, res.Failures(), 2)
}

func TestOCRAdapter_Empty(t *testing.T) {
	engine := &fakeEngine{}
	res := NewOCRAdapter(engine, 2, nil).Recognize(context.Background(), nil)

	assert.Empty(t, res.Texts)
	assert.Equal(t, int32(0), engine.acquired.Load())
}

type fakePDF struct {
	txt string
	err error
}

func (f fakePDF) Extract(context.Context, []byte) (string, error) { return f.txt, f.err }

func TestDecoder(t *testing.T) {
	ctx := context.Background()

	d := NewDecoder(fakePDF{txt: "pdf text"}, nil)
	txt, err := d.Decode(ctx, entity.FileDescriptor{Kind: constants.FileKindText, MediaType: constants.MediaTypeTextPlain, Payload: []byte("hello\xffworld")})
	require.NoError(t, err)
	assert.Equal(t, "helloworld", txt)

	txt, err = d.Decode(ctx, entity.FileDescriptor{Kind: constants.FileKindFile, MediaType: constants.MediaTypePDF, Payload: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, "pdf text", txt)

	d = NewDecoder(fakePDF{err: errors.New("broken")}, nil)
	txt, err = d.Decode(ctx, entity.FileDescriptor{Kind: constants.FileKindFile, MediaType: constants.MediaTypePDF, Payload: []byte("raw")})
	require.Error(t, err)
	assert.Equal(t, "raw", txt)

	txt, err = d.Decode(ctx, entity.FileDescriptor{Kind: constants.FileKindFile, MediaType: constants.MediaTypeOctetStream, Payload: []byte("bytes")})
	require.NoError(t, err)
	assert.Equal(t, "bytes", txt)
}

func TestDecoder_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>INVOICE</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Invoice No: </w:t></w:r><w:r><w:t>1234</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	d := NewDecoder(nil, nil)
	txt, err := d.Decode(context.Background(), entity.FileDescriptor{Kind: constants.FileKindFile, MediaType: constants.MediaTypeDOCX, Payload: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, "INVOICE\nInvoice No: 1234", txt)
}
