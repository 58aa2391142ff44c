package rag

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// parseDocument dispatches on content type / filename extension and
// returns the document's plain text (§4.8). PDF and DOCX readers in this
// ecosystem require a filesystem path or ReaderAt+size, so raw bytes are
// spooled to a temp file for those two formats.
func parseDocument(raw []byte, contentType, filename string) (string, error) {
	ct := strings.ToLower(contentType)
	fn := strings.ToLower(filename)

	switch {
	case strings.Contains(ct, "pdf") || strings.HasSuffix(fn, ".pdf"):
		return parsePDF(raw)
	case strings.Contains(ct, "word") || strings.Contains(ct, "docx") || strings.HasSuffix(fn, ".docx"):
		return parseDOCX(raw)
	default:
		return decodeText(raw), nil
	}
}

func parsePDF(raw []byte) (string, error) {
	tmp, err := os.CreateTemp("", "rag-*.pdf")
	if err != nil {
		return "", fmt.Errorf("spool pdf: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if _, err := tmp.Write(raw); err != nil {
		return "", fmt.Errorf("spool pdf: %w", err)
	}

	reader, err := pdf.NewReader(tmp, int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var pages []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDOCX(raw []byte) (string, error) {
	tmp, err := os.CreateTemp("", "rag-*.docx")
	if err != nil {
		return "", fmt.Errorf("spool docx: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", fmt.Errorf("spool docx: %w", err)
	}
	tmp.Close()

	doc, err := docx.ReadDocxFile(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	defer doc.Close()
	return doc.Editable().GetContent(), nil
}

// decodeText tries utf-8 first, then falls back to treating the bytes as
// already-valid text with replacement of invalid sequences — the ecosystem
// has no drop-in Windows-1251/Latin-1 transcoder in the retrieved pack, so
// only the utf-8 fast path is exact; everything else degrades to
// best-effort byte-for-rune decoding rather than erroring the whole
// indexing run.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(bytes.ReplaceAll(raw, []byte{0}, nil)), "�")
}
