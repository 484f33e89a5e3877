package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbgrab/nzbgrab/internal/nntp/queue"
)

func writeDescriptorFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "d.nzb.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadNzbDescriptorValid(t *testing.T) {
	path := writeDescriptorFile(t, `{
		"name": "some.release",
		"category": "movies",
		"files": [{"filename": "some.release.mkv", "size": 1024, "articles": [
			{"partNumber": 1, "messageId": "<abc@example>", "size": 512, "segmentOffset": 0}
		]}]
	}`)

	d, err := loadNzbDescriptor(path)
	require.NoError(t, err)
	require.Equal(t, "some.release", d.Name)
	require.Len(t, d.Files, 1)
	require.Len(t, d.Files[0].Articles, 1)
}

func TestLoadNzbDescriptorRejectsMissingName(t *testing.T) {
	path := writeDescriptorFile(t, `{"files": [{"filename": "x"}]}`)
	_, err := loadNzbDescriptor(path)
	require.Error(t, err)
}

func TestLoadNzbDescriptorRejectsNoFiles(t *testing.T) {
	path := writeDescriptorFile(t, `{"name": "x"}`)
	_, err := loadNzbDescriptor(path)
	require.Error(t, err)
}

func TestToNzbInfoSetsAutoRenameWhenFilenameMissing(t *testing.T) {
	d := &nzbDescriptor{
		Name: "obfuscated.release",
		Files: []fileDescriptor{
			{Filename: "", Size: 2048, Articles: []articleDescriptor{{PartNumber: 1, MessageID: "<a@b>"}}},
		},
	}
	nzb := d.toNzbInfo()
	require.Equal(t, queue.DirectRenameRunning, nzb.DirectRenameStatus)
	require.Len(t, nzb.Files, 1)
	require.NotEmpty(t, nzb.Files[0].ID)
	require.Len(t, nzb.Files[0].Articles, 1)
	require.Equal(t, queue.ArticleUndefined, nzb.Files[0].Articles[0].Status)
}

func TestToNzbInfoLeavesRenameStatusZeroWhenNamed(t *testing.T) {
	d := &nzbDescriptor{
		Name: "named.release",
		Files: []fileDescriptor{
			{Filename: "named.release.r00", Size: 100},
		},
	}
	nzb := d.toNzbInfo()
	require.Equal(t, queue.DirectRenameStatus(0), nzb.DirectRenameStatus)
}
