package nzbutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsObfuscated(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"mybook.pdf", true},
		{"MyMovie2023", false},
		{"abc123XYZ", false},
		{"abc.xyz.deadbeef01.mkv", true},
		{"abc.xyz.ghij.mkv", false}, // not hex after prefix
		{"report_final_v2.docx", true},
		{"", false},
	}
	for _, c := range cases {
		require.Equalf(t, c.want, IsObfuscated(c.name), "name=%q", c.name)
	}
}

func TestDetermineFilename_ContentDisposition(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Disposition", `attachment; filename="archive.nzb"`)
	rec.WriteHeader(http.StatusOK)
	rec.Body.WriteString("not really nzb content but enough bytes")
	resp := rec.Result()

	name, body, err := DetermineFilename("https://example.com/download?id=1", resp)
	require.NoError(t, err)
	require.Equal(t, "archive.nzb", name)

	buf := make([]byte, 4)
	n, _ := body.Read(buf)
	require.Equal(t, "not ", string(buf[:n]))
}

func TestDetermineFilename_FallsBackToURLPath(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	rec.Body.WriteString(strings.Repeat("x", 600))
	resp := rec.Result()

	name, _, err := DetermineFilename("https://example.com/path/to/myfile.nzb", resp)
	require.NoError(t, err)
	require.Equal(t, "myfile.nzb", name)
}
