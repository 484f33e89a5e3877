package nzbutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
)

// IsObfuscated reports whether a candidate filename looks machine-generated
// rather than human-chosen, the test behind FileNaming=auto's choice between
// the article-declared and the NZB-declared name. No code in this module
// calls it.
//
// Ported bit-for-bit from the original implementation's Util::IsObfuscated:
// a name starting "abc.xyz." is obfuscated when the run up to the next '.'
// is all hex digits and NOT obfuscated otherwise; any other name containing
// only letters and digits is NOT obfuscated; every other name (any other
// non-alphanumeric character, a single extension dot included) IS obfuscated.
func IsObfuscated(name string) bool {
	if strings.HasPrefix(name, "abc.xyz.") {
		rest := name[len("abc.xyz."):]
		for _, r := range rest {
			if r == '.' {
				break
			}
			if !isHexDigit(byte(r)) {
				return false
			}
		}
		return true
	}

	for i := 0; i < len(name); i++ {
		if !isAlphaNum(name[i]) {
			return true
		}
	}
	return false
}

func isAlphaNum(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')
}

func isHexDigit(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'A' && ch <= 'F') || (ch >= 'a' && ch <= 'f')
}

// DetermineFilename extracts the most likely filename for a fetched resource
// from, in order of preference: the Content-Disposition header, a filename/
// file query parameter, the URL path, and finally magic-byte sniffing. It
// returns the chosen name and a reader that replays any bytes consumed while
// sniffing.
func DetermineFilename(rawURL string, resp *http.Response) (string, io.Reader, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, err
	}

	var candidate string
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		candidate = name
	}
	if candidate == "" {
		q := parsed.Query()
		if name := q.Get("filename"); name != "" {
			candidate = name
		} else if name := q.Get("file"); name != "" {
			candidate = name
		}
	}
	if candidate == "" {
		candidate = filepath.Base(parsed.Path)
	}
	filename := sanitizeFilename(candidate)

	header := make([]byte, 512)
	n, rerr := io.ReadFull(resp.Body, header)
	if rerr != nil {
		if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			header = header[:n]
		} else {
			return "", nil, fmt.Errorf("reading header: %w", rerr)
		}
	} else {
		header = header[:n]
	}
	body := io.MultiReader(bytes.NewReader(header), resp.Body)

	if filepath.Ext(filename) == "" {
		if kind, _ := filetype.Match(header); kind != filetype.Unknown && kind.Extension != "" {
			filename = filename + "." + kind.Extension
		}
	}

	if filename == "" || filename == "." || filename == "/" {
		filename = "download.nzb"
	}

	return filename, body, nil
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." {
		return name
	}
	if name == "/" {
		return "_"
	}
	name = strings.TrimSpace(name)
	for _, bad := range []string{"/", ":", "*", "?", "\"", "<", ">", "|"} {
		name = strings.ReplaceAll(name, bad, "_")
	}
	return name
}
