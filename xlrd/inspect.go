package xlrd

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"strings"
)

// FileFormatDescriptions provides descriptions of the file types that can be inspected.
var FileFormatDescriptions = map[string]string{
	"xls":  "Excel xls",
	"xlsb": "Excel 2007 xlsb file",
	"xlsx": "Excel xlsx file",
	"ods":  "Openoffice.org ODS file",
	"zip":  "Unknown ZIP file",
	"":     "Unknown file type",
}

// XLS_SIGNATURE is the magic cookie that should appear in the first 8 bytes of an XLS file.
var XLS_SIGNATURE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// ZIP_SIGNATURE is the magic cookie for ZIP files.
var ZIP_SIGNATURE = []byte("PK\x03\x04")

// PEEK_SIZE is the maximum size needed to peek at file signatures.
const PEEK_SIZE = 8

// expandUser replaces a leading ~ with the home directory.
func expandUser(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return strings.Replace(path, "~", home, 1), nil
}

// InspectFormat inspects the content at the supplied path or the bytes content provided
// and returns the file's type as a string, or empty string if it cannot be determined.
//
// path: A string path containing the content to inspect. ~ will be expanded.
// content: The bytes content to inspect. When not nil, path is ignored.
//
// The return value can always be looked up in FileFormatDescriptions
// to return a human-readable description of the format found. A bare BIFF
// stream without a container is reported as "".
func InspectFormat(path string, content []byte) (string, error) {
	peek, err := peekContent(path, content)
	if err != nil {
		return "", err
	}
	switch {
	case len(peek) < PEEK_SIZE:
		return "", nil
	case bytes.HasPrefix(peek, XLS_SIGNATURE):
		return "xls", nil
	case !bytes.HasPrefix(peek, ZIP_SIGNATURE):
		return "", nil
	}

	var zf *zip.Reader
	if content != nil {
		if zf, err = zip.NewReader(bytes.NewReader(content), int64(len(content))); err != nil {
			return "", err
		}
	} else {
		expanded, err := expandUser(path)
		if err != nil {
			return "", err
		}
		r, err := zip.OpenReader(expanded)
		if err != nil {
			return "", err
		}
		defer r.Close()
		zf = &r.Reader
	}

	// Some third party files use backslashes and lower case names, so
	// component names are compared after normalising both.
	componentNames := make(map[string]bool)
	for _, f := range zf.File {
		componentNames[strings.ToLower(strings.ReplaceAll(f.Name, "\\", "/"))] = true
	}
	switch {
	case componentNames["xl/workbook.xml"]:
		return "xlsx", nil
	case componentNames["xl/workbook.bin"]:
		return "xlsb", nil
	case componentNames["content.xml"]:
		return "ods", nil
	}
	return "zip", nil
}

func peekContent(path string, content []byte) ([]byte, error) {
	if content != nil {
		if len(content) < PEEK_SIZE {
			return content, nil
		}
		return content[:PEEK_SIZE], nil
	}
	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	peek := make([]byte, PEEK_SIZE)
	n, err := io.ReadFull(f, peek)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return peek[:n], nil
}
