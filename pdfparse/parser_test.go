package pdfparse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
)

func init() { logger.Disable() }

// fakePDF builds a blob with the given number of page markers, padded to
// size bytes.
func fakePDF(pages, size int) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	for i := 0; i < pages; i++ {
		b.WriteString("<< /Type /Page >>\n")
	}
	if pad := size - b.Len(); pad > 0 {
		b.Write(bytes.Repeat([]byte{' '}, pad))
	}
	return b.Bytes()
}

func testConfig(endpoint string) config.PDFConfig {
	return config.PDFConfig{
		ParserEndpoint: endpoint,
		OCRPageBytes:   1000,
		ChunkBytes:     5000,
		ChunkPages:     10,
		Workers:        2,
		MinTextChars:   5,
	}
}

func TestPageCount(t *testing.T) {
	if got := PageCount(fakePDF(7, 0)); got != 7 {
		t.Errorf("PageCount = %d, want 7", got)
	}
	if got := PageCount([]byte("no markers")); got != 1 {
		t.Errorf("PageCount floor = %d, want 1", got)
	}
}

func TestSinglePassParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ocr") != "false" {
			t.Errorf("ocr = %q, want false", r.URL.Query().Get("ocr"))
		}
		if r.URL.Query().Get("first_page") != "" {
			t.Error("single pass should not set a page range")
		}
		io.WriteString(w, `{"text":"document text","pages":3}`)
	}))
	defer srv.Close()

	p := New(testConfig(srv.URL), httpx.New(httpx.Options{Timeout: time.Second}))
	text, err := p.Parse(context.Background(), fakePDF(3, 2000))
	if err != nil {
		t.Fatal(err)
	}
	if text != "document text" {
		t.Errorf("got %q", text)
	}
}

func TestOCREnabledForImageHeavyPages(t *testing.T) {
	var sawOCR atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ocr") == "true" {
			sawOCR.Store(true)
		}
		io.WriteString(w, `{"text":"scanned text","pages":2}`)
	}))
	defer srv.Close()

	p := New(testConfig(srv.URL), httpx.New(httpx.Options{Timeout: time.Second}))
	// 2 pages, 4000 bytes: 2000 bytes/page >= the 1000 threshold.
	if _, err := p.Parse(context.Background(), fakePDF(2, 4000)); err != nil {
		t.Fatal(err)
	}
	if !sawOCR.Load() {
		t.Error("OCR flag not set for image-heavy document")
	}
}

func TestChunkedParseJoinsRangesInOrder(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		first := r.URL.Query().Get("first_page")
		fmt.Fprintf(w, `{"text":"range-%s","pages":25}`, first)
	}))
	defer srv.Close()

	// 25 pages, 40KB: over ChunkBytes and over ChunkPages.
	p := New(testConfig(srv.URL), httpx.New(httpx.Options{Timeout: time.Second}))
	text, err := p.Parse(context.Background(), fakePDF(25, 40000))
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	parts := strings.Split(text, "\n\f")
	if len(parts) != 3 || parts[0] != "range-1" || parts[1] != "range-11" || parts[2] != "range-21" {
		t.Errorf("ranges out of order: %q", text)
	}
}

func TestChunkFailureFailsDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("first_page") == "11" {
			io.WriteString(w, `{"error":"corrupt page"}`)
			return
		}
		io.WriteString(w, `{"text":"ok","pages":25}`)
	}))
	defer srv.Close()

	p := New(testConfig(srv.URL), httpx.New(httpx.Options{Timeout: time.Second}))
	_, err := p.Parse(context.Background(), fakePDF(25, 40000))
	if err == nil || !strings.Contains(err.Error(), "corrupt page") {
		t.Errorf("err = %v", err)
	}
}

func TestTooLittleTextIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"x","pages":1}`)
	}))
	defer srv.Close()

	p := New(testConfig(srv.URL), httpx.New(httpx.Options{Timeout: time.Second}))
	if _, err := p.Parse(context.Background(), fakePDF(1, 100)); err == nil {
		t.Error("expected error for near-empty extraction")
	}
}
