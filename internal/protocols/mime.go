package protocols

import (
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// normalizeMime drops parameters and lowercases a media type.
func normalizeMime(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// mimeFromName guesses from the file extension.
func mimeFromName(name string) string {
	return normalizeMime(mime.TypeByExtension(strings.ToLower(path.Ext(name))))
}

// sniff detects the type from content.
func sniff(r io.Reader) string {
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return ""
	}
	return normalizeMime(m.String())
}

// resolveMime prefers a declared type, then the extension, then content.
// open is only called when the cheaper sources give nothing useful.
func resolveMime(declared, name string, open func() (io.ReadCloser, error)) string {
	if mt := normalizeMime(declared); mt != "" && mt != octetStream {
		return mt
	}
	if mt := mimeFromName(name); mt != "" {
		return mt
	}
	if open == nil {
		return octetStream
	}
	rc, err := open()
	if err != nil {
		return octetStream
	}
	defer rc.Close()
	if mt := sniff(rc); mt != "" {
		return mt
	}
	return octetStream
}
