package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// Supabase stores media in a public Supabase Storage bucket.
type Supabase struct {
	client  *supabase.Client
	baseURL string
	bucket  string
}

func NewSupabase(url, serviceRoleKey, bucket string) (*Supabase, error) {
	if url == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &Supabase{client: client, baseURL: strings.TrimRight(url, "/"), bucket: bucket}, nil
}

func (s *Supabase) Store(ctx context.Context, folder, name, contentType string, data []byte) (string, error) {
	key := folder + "/" + name
	upsert := true
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return publicURL(s.baseURL, s.bucket, key), nil
}

func publicURL(baseURL, bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", baseURL, bucket, key)
}
