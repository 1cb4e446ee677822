package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
	"golang.org/x/sync/errgroup"

	"github.com/hometour/api/internal/client"
	"github.com/hometour/api/internal/model"
)

var allowedPhotoTypes = []types.Type{matchers.TypeJpeg, matchers.TypePng, matchers.TypeWebp}

// UploadService stores listing photos
type UploadService struct {
	storage     client.StorageClient
	maxFileSize int64
	maxFiles    int
}

func NewUploadService(storage client.StorageClient, maxFileSize int64, maxFiles int) *UploadService {
	return &UploadService{
		storage:     storage,
		maxFileSize: maxFileSize,
		maxFiles:    maxFiles,
	}
}

type photoData struct {
	filename string
	data     []byte
	kind     types.Type
}

// UploadPhotos validates every file first, then uploads them concurrently
// under photos/<uuid>.<ext>. Photos keep the order they were sent in.
func (s *UploadService) UploadPhotos(ctx context.Context, files []*multipart.FileHeader) ([]model.Photo, error) {
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}

	items, err := s.readAll(files)
	if err != nil {
		return nil, err
	}

	photos := make([]model.Photo, len(items))
	keys := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			key := client.GenerateUniqueKey("photos", item.kind.Extension)
			url, err := s.storage.Upload(gctx, key, bytes.NewReader(item.data), item.kind.MIME.Value)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", item.filename, err)
			}
			keys[i] = key

			detection := DetectRoomFromFilename(item.filename)
			photos[i] = model.Photo{
				ID:          uuid.New().String(),
				URL:         url,
				Filename:    item.filename,
				Order:       i,
				RoomType:    detection.RoomType,
				IsExterior:  detection.IsExterior,
				IsSmallRoom: detection.IsSmallRoom,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.rollback(context.WithoutCancel(ctx), keys)
		return nil, err
	}

	log.Printf("[Upload] stored %d photo(s)", len(photos))
	return photos, nil
}

// rollback removes the photos of a batch that failed part way.
func (s *UploadService) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			log.Printf("[Upload] failed to remove %s after a failed batch: %v", key, err)
		}
	}
}

func (s *UploadService) readAll(files []*multipart.FileHeader) ([]photoData, error) {
	if len(files) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"photos": "at least one photo is required"}}
	}
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return nil, &ValidationError{Fields: map[string]string{"photos": fmt.Sprintf("at most %d photos allowed", s.maxFiles)}}
	}

	items := make([]photoData, 0, len(files))
	fields := make(map[string]string)
	for i, fh := range files {
		field := fmt.Sprintf("photos[%d]", i)
		if s.maxFileSize > 0 && fh.Size > s.maxFileSize {
			fields[field] = fmt.Sprintf("%s exceeds %d bytes", fh.Filename, s.maxFileSize)
			continue
		}

		data, err := readFileHeader(fh, s.maxFileSize)
		if err != nil {
			return nil, err
		}

		kind, _ := filetype.Match(data)
		if !isAllowedPhoto(kind) {
			fields[field] = fmt.Sprintf("%s: only JPG, PNG and WebP are allowed", fh.Filename)
			continue
		}

		items = append(items, photoData{filename: fh.Filename, data: data, kind: kind})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return items, nil
}

func readFileHeader(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return data, nil
}

func isAllowedPhoto(kind types.Type) bool {
	for _, t := range allowedPhotoTypes {
		if kind == t {
			return true
		}
	}
	return false
}
