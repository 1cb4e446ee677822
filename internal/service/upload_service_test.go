package service

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hometour/api/internal/model"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	jpegBytes = append([]byte("\xFF\xD8\xFF\xE0"), bytes.Repeat([]byte{0}, 32)...)
)

type formFile struct {
	name string
	data []byte
}

func buildFileHeaders(t *testing.T, files ...formFile) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("photos", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["photos"]
}

func TestUploadService_UploadPhotos(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewUploadService(storage, 1024, 5)

	photos, err := svc.UploadPhotos(context.Background(), buildFileHeaders(t,
		formFile{"front.png", pngBytes},
		formFile{"kitchen.jpg", jpegBytes},
	))
	require.NoError(t, err)
	require.Len(t, photos, 2)

	assert.Equal(t, 0, photos[0].Order)
	assert.Equal(t, "front.png", photos[0].Filename)
	assert.Equal(t, model.RoomFrontExterior, photos[0].RoomType)
	assert.True(t, photos[0].IsExterior)
	assert.True(t, strings.HasSuffix(photos[0].URL, ".png"))

	assert.Equal(t, 1, photos[1].Order)
	assert.Equal(t, model.RoomKitchen, photos[1].RoomType)
	assert.True(t, strings.HasSuffix(photos[1].URL, ".jpg"))

	require.Len(t, storage.keys, 2)
	for _, k := range storage.keys {
		assert.True(t, strings.HasPrefix(k, "photos/"), k)
	}
}

func TestUploadService_RejectsBeforeUploading(t *testing.T) {
	tests := []struct {
		name  string
		files []formFile
		field string
	}{
		{"no files", nil, "photos"},
		{"not an image", []formFile{{"front.png", pngBytes}, {"notes.txt", []byte("hello world")}}, "photos[1]"},
		{"too large", []formFile{{"big.jpg", append(jpegBytes, bytes.Repeat([]byte{1}, 2048)...)}}, "photos[0]"},
		{"too many", []formFile{{"a.png", pngBytes}, {"b.png", pngBytes}, {"c.png", pngBytes}}, "photos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &fakeStorage{}
			svc := NewUploadService(storage, 1024, 2)

			var headers []*multipart.FileHeader
			if len(tt.files) > 0 {
				headers = buildFileHeaders(t, tt.files...)
			}
			_, err := svc.UploadPhotos(context.Background(), headers)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Fields, tt.field)
			assert.Empty(t, storage.keys)
		})
	}
}

func TestUploadService_NoStorage(t *testing.T) {
	svc := NewUploadService(nil, 1024, 2)
	_, err := svc.UploadPhotos(context.Background(), buildFileHeaders(t, formFile{"a.png", pngBytes}))
	assert.True(t, errors.Is(err, ErrStorageNotConfigured))
}

func TestUploadService_RollsBackPartialBatch(t *testing.T) {
	storage := &fakeStorage{failOn: "BROKEN"}
	svc := NewUploadService(storage, 1024, 5)

	broken := append(append([]byte{}, pngBytes...), []byte("BROKEN")...)
	_, err := svc.UploadPhotos(context.Background(), buildFileHeaders(t,
		formFile{"front.png", pngBytes},
		formFile{"back.png", broken},
	))
	require.Error(t, err)
	assert.ErrorContains(t, err, "back.png")
	assert.ElementsMatch(t, storage.keys, storage.deleted)
}
