package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"stars-host/models"
	"stars-host/starsfile"
	"stars-host/storage"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// StarsFileService stores engine file bytes and builds the StarsFile rows
// that point at them. Rows are returned unsaved; callers persist them with
// whatever else they are committing.
type StarsFileService struct {
	store storage.BlobStore
	codec starsfile.Codec
	log   *zap.Logger
	now   func() time.Time
}

func NewStarsFileService(store storage.BlobStore, codec starsfile.Codec, log *zap.Logger) *StarsFileService {
	return &StarsFileService{store: store, codec: codec, log: log, now: time.Now}
}

// StorageKey lays blobs out by type and day.
func StorageKey(fileType string, at time.Time, id string) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s",
		models.FileTypeName(fileType), at.Year(), int(at.Month()), at.Day(), id)
}

// FromData checks that data decodes as fileType, stores it and returns the
// new row.
func (s *StarsFileService) FromData(ctx context.Context, data []byte, fileType string, uploadUser *string) (*models.StarsFile, error) {
	kind := starsfile.KindFromExt(fileType)
	if kind == starsfile.KindUnknown {
		return nil, fmt.Errorf("unknown stars file type %q", fileType)
	}
	if _, err := starsfile.DecodeKind(s.codec, data, kind); err != nil {
		return nil, err
	}
	return s.Store(ctx, data, fileType, uploadUser)
}

// Store saves bytes that were already checked, such as decoded engine output.
func (s *StarsFileService) Store(ctx context.Context, data []byte, fileType string, uploadUser *string) (*models.StarsFile, error) {
	now := s.now().UTC()
	id := uuid.NewString()
	sum := blake3.Sum256(data)

	f := &models.StarsFile{
		ID:           id,
		Type:         fileType,
		UploadUserID: uploadUser,
		Timestamp:    now,
		StorageKey:   StorageKey(fileType, now, id),
		Size:         int64(len(data)),
		Digest:       hex.EncodeToString(sum[:]),
	}
	if err := s.store.Put(ctx, f.StorageKey, data); err != nil {
		return nil, fmt.Errorf("failed to store %s file: %w", models.FileTypeName(fileType), err)
	}
	s.log.Debug("stored stars file",
		zap.String("file_id", f.ID),
		zap.String("type", fileType),
		zap.Int64("size", f.Size))
	return f, nil
}

// Open returns a file's bytes, checking them against the stored digest.
func (s *StarsFileService) Open(ctx context.Context, f *models.StarsFile) ([]byte, error) {
	data, err := s.store.Get(ctx, f.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read stars file %s: %w", f.ID, err)
	}
	if f.Digest != "" {
		sum := blake3.Sum256(data)
		if hex.EncodeToString(sum[:]) != f.Digest {
			return nil, fmt.Errorf("stars file %s does not match its digest", f.ID)
		}
	}
	return data, nil
}

// Snapshot copies f into a new immutable file, the official copy the engine
// is given. Later uploads replace the original pointer, never the copy.
func (s *StarsFileService) Snapshot(ctx context.Context, f *models.StarsFile) (*models.StarsFile, []byte, error) {
	data, err := s.Open(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	cp, err := s.Store(ctx, data, f.Type, f.UploadUserID)
	if err != nil {
		return nil, nil, err
	}
	return cp, data, nil
}
