package services

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"golang.org/x/sync/errgroup"
)

// FileUpload is one attachment submitted with a message.
type FileUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ClassifyMedia maps a content type to a media kind. When the content type is
// missing it is guessed from the file extension.
func ClassifyMedia(contentType, fileName string) models.MediaKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" || ct == "application/octet-stream" {
		if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); guessed != "" {
			ct = guessed
		}
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch {
	case strings.HasPrefix(ct, "image/"):
		return models.MediaImage
	case strings.HasPrefix(ct, "video/"):
		return models.MediaVideo
	case ct == "application/pdf":
		return models.MediaPDF
	default:
		return models.MediaDocument
	}
}

// uploadAll uploads every file concurrently and returns the media in the order
// the files were submitted. The first failure cancels the rest.
func uploadAll(ctx context.Context, up Uploader, folder string, files []FileUpload) ([]models.Media, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if up == nil {
		return nil, fmt.Errorf("%w: no uploader configured", ErrUploadFailed)
	}

	media := make([]models.Media, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			url, err := up.Upload(gctx, f.Data, folder, f.FileName)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrUploadFailed, f.FileName, err)
			}
			media[i] = models.Media{
				URL:      url,
				Kind:     ClassifyMedia(f.ContentType, f.FileName),
				FileName: f.FileName,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return media, nil
}
