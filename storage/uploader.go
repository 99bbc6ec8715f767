package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader хранит архивные объекты турниров (итоговые таблицы).
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	GetPublicURL(key string) string
}

func FinalRankingsKey(tournamentID int) string {
	return fmt.Sprintf("tournaments/%d/final-rankings.json", tournamentID)
}

// UploadJSON кодирует v и кладёт его под key.
func UploadJSON(ctx context.Context, up FileUploader, key string, v any) (*UploadResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive object %s: %w", key, err)
	}
	return up.Upload(ctx, key, "application/json", bytes.NewReader(body))
}
