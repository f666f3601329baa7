package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// PDFTextExtractor reads the text layer of a PDF.
type PDFTextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Decoder is the default TextDecoder.
type Decoder struct {
	pdf    PDFTextExtractor
	logger *slog.Logger
}

func NewDecoder(pdf PDFTextExtractor, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{pdf: pdf, logger: logger}
}

func (d *Decoder) Decode(ctx context.Context, f entity.FileDescriptor) (string, error) {
	fallback := plainText(f.Payload)
	if f.Kind == constants.FileKindText || constants.IsTextMediaType(f.MediaType) {
		return fallback, nil
	}

	var (
		txt string
		err error
	)
	switch f.MediaType {
	case constants.MediaTypePDF:
		if d.pdf == nil {
			err = errors.New("no pdf text extractor configured")
			break
		}
		txt, err = d.pdf.Extract(ctx, f.Payload)
	case constants.MediaTypeDOCX:
		txt, err = docxText(f.Payload)
	default:
		return fallback, nil
	}
	if err != nil {
		d.logger.Warn("decode.fallback", "media_type", f.MediaType, "name", f.Name, "error", err)
		return fallback, err
	}
	return txt, nil
}

func plainText(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}

// docxText concatenates the w:t runs of word/document.xml, one line per paragraph.
func docxText(b []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("docx: word/document.xml missing")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("docx: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
