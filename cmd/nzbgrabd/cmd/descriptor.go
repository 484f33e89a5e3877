package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nzbgrab/nzbgrab/internal/nntp/queue"
)

// nzbDescriptor is the JSON shape `add` drops into the incoming directory
// and `run` ingests via queue.AddNzbFileToQueue. It stands in for the NZB
// XML parser's output: spec.md §1 places "the NZB XML parser" outside the
// core's scope, so this core only ever receives an already-parsed
// collection of files/articles — this descriptor is that external
// collaborator's contract, expressed as JSON instead of XML because no
// parser for either format is this CLI's job to own.
type nzbDescriptor struct {
	Name     string           `json:"name"`
	Category string           `json:"category"`
	DestDir  string           `json:"destDir"`
	Priority int              `json:"priority"`
	AddFirst bool             `json:"addFirst"`
	Files    []fileDescriptor `json:"files"`
}

type fileDescriptor struct {
	Filename         string              `json:"filename"`
	Size             int64               `json:"size"`
	ForceDirectWrite bool                `json:"forceDirectWrite"`
	PostedAt         time.Time           `json:"postedAt"`
	Articles         []articleDescriptor `json:"articles"`
}

type articleDescriptor struct {
	PartNumber    int    `json:"partNumber"`
	MessageID     string `json:"messageId"`
	Size          int64  `json:"size"`
	SegmentOffset int64  `json:"segmentOffset"`
}

func loadNzbDescriptor(path string) (*nzbDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d nzbDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse nzb descriptor %s: %w", path, err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("nzb descriptor %s: name is required", path)
	}
	if len(d.Files) == 0 {
		return nil, fmt.Errorf("nzb descriptor %s: at least one file is required", path)
	}
	return &d, nil
}

// toNzbInfo builds a queue.NzbInfo ready for queue.AddNzbFileToQueue.
// Auto-naming (an empty Filename) sets DirectRenameRunning so the
// Coordinator's GetNextArticle direct-rename phase (§4.8 step 4) picks the
// file's first article before any others.
func (d *nzbDescriptor) toNzbInfo() *queue.NzbInfo {
	nzb := &queue.NzbInfo{
		ID:       queue.NewID(),
		Name:     d.Name,
		Category: d.Category,
		DestDir:  d.DestDir,
		Priority: d.Priority,
		Kind:     queue.KindNzb,
	}

	needsAutoName := false
	for _, fd := range d.Files {
		if fd.Filename == "" {
			needsAutoName = true
		}
		f := &queue.FileInfo{
			ID:               queue.NewID(),
			Filename:         fd.Filename,
			Origname:         fd.Filename,
			Size:             fd.Size,
			RemainingSize:    fd.Size,
			ForceDirectWrite: fd.ForceDirectWrite,
			PostedAt:         fd.PostedAt,
		}
		for _, ad := range fd.Articles {
			f.Articles = append(f.Articles, &queue.ArticleInfo{
				ID:            queue.NewID(),
				PartNumber:    ad.PartNumber,
				MessageID:     ad.MessageID,
				Size:          ad.Size,
				SegmentOffset: ad.SegmentOffset,
				Status:        queue.ArticleUndefined,
			})
		}
		nzb.Files = append(nzb.Files, f)
	}
	if needsAutoName {
		nzb.DirectRenameStatus = queue.DirectRenameRunning
	}
	return nzb
}
