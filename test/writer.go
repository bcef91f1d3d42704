package test

import "bytes"

// Writer is an io.Writer backed by an in-memory buffer, used in tests to
// capture and compare logger/diagnostic output.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Compare reports whether the accumulated contents equal s.
func (w *Writer) Compare(s string) bool {
	return w.buf.String() == s
}

// Clear discards the accumulated contents.
func (w *Writer) Clear() {
	w.buf.Reset()
}
