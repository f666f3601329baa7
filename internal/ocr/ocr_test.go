package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/billing-parser/constants"
)

// echoRunner answers a tesseract call with the content of the staged file.
type echoRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *echoRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()
	b, err := os.ReadFile(args[0])
	if err != nil {
		return nil, []byte(err.Error()), err
	}
	if bytes.HasPrefix(b, []byte("FAIL")) {
		return nil, []byte("bad image"), errors.New("exit status 1")
	}
	return b, nil, nil
}

func TestNormalize(t *testing.T) {
	in := "Invoice\r\nNo:\t\t1234   \r\n\r\n\r\n\r\n-----\nTotal  10.00  "
	assert.Equal(t, "Invoice\nNo: 1234\n\nTotal 10.00", Normalize(in))
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "ORDER 10", Normalize("0RDER 10"))
}

func TestHeuristicConfidence(t *testing.T) {
	assert.Equal(t, float32(0), heuristicConfidence("   "))
	low := heuristicConfidence("hello")
	high := heuristicConfidence("Due 2024-05-01 amount $150.00")
	assert.Greater(t, high, low)
	assert.LessOrEqual(t, high, float32(1))
}

func TestTSVMeanConfidence(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\tInvoice\n" +
		"5\t1\t1\t1\t1\t2\t0\t0\t10\t10\t70\t1234\n" +
		"4\t1\t1\t1\t1\t0\t0\t0\t10\t10\t-1\t\n"
	assert.InDelta(t, 0.8, tsvMeanConfidence(tsv), 0.0001)
	assert.Equal(t, float32(0), tsvMeanConfidence(""))
}

func TestSessionRecognize(t *testing.T) {
	runner := &echoRunner{}
	engine := NewTesseract(Config{TesseractLang: "eng", PSM: 6}, nil, WithRunner(runner))

	sess, err := engine.Acquire(context.Background())
	require.NoError(t, err)
	dir := sess.(*session).dir

	res, err := sess.Recognize(context.Background(), []byte("INVOICE\t\tNo 77"), constants.MediaTypePNG)
	require.NoError(t, err)
	assert.Equal(t, "INVOICE No 77", res.Text)
	assert.Equal(t, "eng", res.Language)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "tesseract", runner.calls[0][0])
	assert.Equal(t, []string{"stdout", "-l", "eng", "--psm", "6"}, runner.calls[0][2:])
	assert.True(t, strings.HasSuffix(runner.calls[0][1], ".png"))

	_, err = sess.Recognize(context.Background(), []byte("FAIL"), constants.MediaTypeJPEG)
	require.Error(t, err)

	_, err = sess.Recognize(context.Background(), nil, constants.MediaTypePNG)
	require.ErrorIs(t, err, ErrEmptyImage)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSessionRecognizeCanceled(t *testing.T) {
	engine := NewTesseract(Config{}, nil, WithRunner(&echoRunner{}))
	sess, err := engine.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sess.Recognize(ctx, []byte("x"), constants.MediaTypePNG)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPreprocess(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 50))
	for x := 0; x < 200; x++ {
		img.Set(x, 25, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	dir := t.TempDir()
	in := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(in, buf.Bytes(), 0o600))

	out, err := preprocess(in, 100)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scan-pre.png"), out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o600))
	_, err = preprocess(bad, 0)
	require.Error(t, err)
}

func TestPDFTextExtract(t *testing.T) {
	runner := &stubRunner{out: []byte("Amount   Due: 5.00\r\n")}
	p := NewPDFText("", runner, nil)

	txt, err := p.Extract(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "Amount Due: 5.00", txt)
	assert.Equal(t, "pdftotext", runner.name)

	runner.err = errors.New("exit status 1")
	_, err = p.Extract(context.Background(), []byte("%PDF-1.4"))
	require.Error(t, err)
}

type stubRunner struct {
	name string
	out  []byte
	err  error
}

func (s *stubRunner) Run(_ context.Context, name string, _ *slog.Logger, _ ...string) ([]byte, []byte, error) {
	s.name = name
	if s.err != nil {
		return nil, []byte("boom"), s.err
	}
	return s.out, nil, nil
}
