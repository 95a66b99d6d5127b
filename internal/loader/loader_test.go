package loader

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const docxXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Second</w:t></w:r></w:p></w:body></w:document>`

func writeFile(t *testing.T, dir, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

func writeDocx(t *testing.T, dir, rel, body string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
	return path
}

// --- Adapters ---

func TestTextAdapter_NormalizesNewlinesAndBOM(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", append([]byte{0xEF, 0xBB, 0xBF}, []byte("line one\r\nline two\r\n")...))

	doc, err := TextAdapter{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.RawText != "line one\nline two\n" {
		t.Errorf("unexpected text %q", doc.RawText)
	}
	if doc.SourceName != "a.txt" || doc.SourcePath != path {
		t.Errorf("unexpected identity %+v", doc)
	}
}

func TestTextAdapter_SkipsBinary(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blob.txt", []byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x07, 0x08, 0x00, 0x1f})

	_, err := TextAdapter{}.Load(context.Background(), path)
	if !errors.Is(err, ErrSkip) {
		t.Fatalf("expected ErrSkip, got %v", err)
	}
}

func TestTextAdapter_DecodesUTF16(t *testing.T) {
	dir := t.TempDir()
	data := []byte{0xFF, 0xFE}
	for _, r := range "caf\u00e9 au lait\r\n" {
		data = append(data, byte(r), byte(r>>8))
	}
	path := writeFile(t, dir, "wide.txt", data)

	doc, err := TextAdapter{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.RawText != "caf\u00e9 au lait\n" {
		t.Errorf("unexpected text %q", doc.RawText)
	}
}

func TestTextAdapter_NeverYieldsReplacementChars(t *testing.T) {
	dir := t.TempDir()
	latin1 := []byte("Le caf\xe9 est tr\xe8s bon, la cr\xe8me aussi. Na\xefve r\xe9sum\xe9 \xe0 la fran\xe7aise.\n")
	path := writeFile(t, dir, "latin.txt", latin1)

	doc, err := TextAdapter{}.Load(context.Background(), path)
	if err != nil {
		if !errors.Is(err, ErrSkip) {
			t.Fatalf("expected decoded text or ErrSkip, got %v", err)
		}
		return
	}
	if strings.ContainsRune(doc.RawText, '\uFFFD') {
		t.Errorf("text carries replacement characters: %q", doc.RawText)
	}
	if !strings.Contains(doc.RawText, "caf\u00e9") {
		t.Errorf("unexpected text %q", doc.RawText)
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		charset string
		want    string
		wantErr bool
	}{
		{name: "utf8", data: []byte("h\u00e9llo"), charset: "utf-8", want: "h\u00e9llo"},
		{name: "no charset", data: []byte("plain"), want: "plain"},
		{name: "invalid utf8", data: []byte("h\xe9llo"), charset: "utf-8", wantErr: true},
		{name: "latin1", data: []byte("h\xe9llo"), charset: "iso-8859-1", want: "h\u00e9llo"},
		{name: "windows-1252", data: []byte("\x93quoted\x94"), charset: "windows-1252", want: "\u201cquoted\u201d"},
		{name: "utf16be", data: []byte{0x00, 'h', 0x00, 'i'}, charset: "utf-16be", want: "hi"},
		{name: "unknown charset", data: []byte("h\xe9llo"), charset: "x-klingon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeText(tt.data, tt.charset)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextAdapter_MissingFile(t *testing.T) {
	_, err := TextAdapter{}.Load(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil || errors.Is(err, ErrSkip) {
		t.Fatalf("expected a load failure, got %v", err)
	}
}

func TestMarkdownAdapter_StripsFrontMatter(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"front matter", "---\ntitle: x\n---\n# Heading\nbody", "# Heading\nbody"},
		{"none", "# Heading\n---\nrule", "# Heading\n---\nrule"},
		{"unterminated", "---\ntitle: x\nbody", "---\ntitle: x\nbody"},
		{"dashes inside text", "---\na: b\n----x\n", "---\na: b\n----x\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripFrontMatter(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDocxAdapter_ExtractsParagraphs(t *testing.T) {
	path := writeDocx(t, t.TempDir(), "memo.docx", docxXML)

	doc, err := DocxAdapter{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.RawText != "Hello\t world\nSecond\n" {
		t.Errorf("unexpected text %q", doc.RawText)
	}
}

func TestDocxAdapter_NotAZip(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fake.docx", []byte("plain text pretending"))
	if _, err := (DocxAdapter{}).Load(context.Background(), path); err == nil {
		t.Fatal("expected error for non-zip docx")
	}
}

func TestPDFAdapter_CorruptFileIsError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.pdf", []byte("this is not a pdf"))
	_, err := PDFAdapter{}.Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
	if errors.Is(err, ErrSkip) {
		t.Fatal("corrupt pdf must be a failure, not a skip")
	}
}

func TestRegistry_LookupAndRestrict(t *testing.T) {
	r := DefaultRegistry()

	for _, p := range []string{"a.pdf", "b.TXT", "c.Docx", "d.md", "e.markdown"} {
		if _, ok := r.Lookup(p); !ok {
			t.Errorf("expected adapter for %s", p)
		}
	}
	if _, ok := r.Lookup("f.csv"); ok {
		t.Error("unexpected adapter for .csv")
	}

	only := r.Restrict([]string{"txt", ".MD"})
	if got := strings.Join(only.Extensions(), ","); got != ".md,.txt" {
		t.Errorf("unexpected restricted extensions %q", got)
	}
	if _, ok := only.Lookup("a.pdf"); ok {
		t.Error("restricted registry must not handle .pdf")
	}
}

// --- Scanner ---

func TestScanner_RecursesAndSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", []byte("beta text"))
	writeFile(t, dir, "nested/deep/a.md", []byte("alpha markdown"))
	writeFile(t, dir, "nested/C.TXT", []byte("upper-case extension"))
	writeFile(t, dir, "nested/broken.pdf", []byte("garbage"))
	writeFile(t, dir, "nested/blob.txt", []byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x07, 0x08, 0x00, 0x1f})
	writeFile(t, dir, "ignored.csv", []byte("a,b,c"))
	writeFile(t, dir, ".hidden/secret.txt", []byte("hidden"))
	writeDocx(t, dir, "memo.docx", docxXML)

	s := NewScanner(DefaultRegistry(), 2, zap.NewNop())
	res, err := s.Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, d := range res.Documents {
		names = append(names, d.SourceName)
		if d.ID == "" {
			t.Errorf("%s has no id", d.SourceName)
		}
	}
	// path order: b.txt, memo.docx, nested/C.TXT, nested/deep/a.md
	want := "b.txt,memo.docx,C.TXT,a.md"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if res.Failed != 1 {
		t.Errorf("expected 1 failed (broken.pdf), got %d", res.Failed)
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped (blob.txt), got %d", res.Skipped)
	}
}

func TestScanner_StableIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x/one.txt", []byte("one"))
	writeFile(t, dir, "y/one.txt", []byte("one"))

	s := NewScanner(DefaultRegistry(), 0, zap.NewNop())
	a, _ := s.Scan(context.Background(), dir)
	b, _ := s.Scan(context.Background(), dir)

	if len(a.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(a.Documents))
	}
	if a.Documents[0].ID == a.Documents[1].ID {
		t.Error("same base name in different folders must get different ids")
	}
	for i := range a.Documents {
		if a.Documents[i].ID != b.Documents[i].ID {
			t.Errorf("id of %s changed between scans", a.Documents[i].SourcePath)
		}
	}
}

func TestScanner_MissingRoot(t *testing.T) {
	s := NewScanner(DefaultRegistry(), 1, zap.NewNop())
	if _, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestScanner_Canceled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner(DefaultRegistry(), 1, zap.NewNop())
	_, err := s.Scan(ctx, dir)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
