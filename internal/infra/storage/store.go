package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"firmadoc/internal/domain"
)

// StoredObject is one blob plus the per-object metadata needed to read
// it back. Algorithm travels with the object because different objects
// may have been written with different compressors over time.
type StoredObject struct {
	Content      []byte
	MimeType     string
	Algorithm    string
	OriginalSize int64
}

type BlobStore interface {
	Put(ctx context.Context, locator string, obj StoredObject) error
	Get(ctx context.Context, locator string) (*StoredObject, error)
}

type StoreRequest struct {
	FileName  string
	Directory string
	MimeType  string
	Content   []byte
	// Algorithm selects the compressor for content above the threshold.
	// Empty means brotli.
	Algorithm string
}

type StoreResult struct {
	Locator     string
	Compression domain.CompressionInfo
}

// Service compresses on the way in and decompresses on the way out.
// Every blob operation runs under a deadline; a timeout is reported as
// storage being unavailable, never as the document missing.
type Service struct {
	blobs      BlobStore
	compressor *Compressor
	timeout    time.Duration
	log        *logrus.Entry
}

func NewService(blobs BlobStore, compressor *Compressor, timeout time.Duration, log *logrus.Entry) *Service {
	if compressor == nil {
		compressor = NewCompressor(0)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{blobs: blobs, compressor: compressor, timeout: timeout, log: log}
}

func (s *Service) Store(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", domain.ErrValidation)
	}
	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = AlgorithmBrotli
	}

	result, err := s.compressor.Compress(req.Content, algorithm)
	if err != nil {
		return nil, err
	}

	locator, err := newLocator(req.Directory, req.FileName)
	if err != nil {
		return nil, err
	}

	obj := StoredObject{
		Content:      result.Compressed,
		MimeType:     req.MimeType,
		Algorithm:    result.Info.Algorithm,
		OriginalSize: result.Info.OriginalSize,
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.blobs.Put(opCtx, locator, obj); err != nil {
		return nil, mapStorageErr(err)
	}

	s.log.WithFields(logrus.Fields{
		"locator":         locator,
		"algorithm":       result.Info.Algorithm,
		"original_size":   result.Info.OriginalSize,
		"compressed_size": result.Info.CompressedSize,
	}).Info("document stored")

	return &StoreResult{Locator: locator, Compression: result.Info}, nil
}

// StoreDocument is the plain-argument form of Store used by the
// service layer.
func (s *Service) StoreDocument(ctx context.Context, fileName, directory, mimeType string, content []byte, algorithm string) (string, domain.CompressionInfo, error) {
	res, err := s.Store(ctx, StoreRequest{
		FileName:  fileName,
		Directory: directory,
		MimeType:  mimeType,
		Content:   content,
		Algorithm: algorithm,
	})
	if err != nil {
		return "", domain.CompressionInfo{}, err
	}
	return res.Locator, res.Compression, nil
}

func (s *Service) Retrieve(ctx context.Context, locator string, decompress bool) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	obj, err := s.blobs.Get(opCtx, locator)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	if !decompress {
		return obj.Content, nil
	}
	return s.compressor.Decompress(obj.Content, obj.Algorithm)
}

func newLocator(directory, fileName string) (string, error) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return "", fmt.Errorf("generate locator token: %w", err)
	}
	if directory == "" {
		directory = "GESTION_ONLINE"
	}
	return path.Join(directory, hex.EncodeToString(token)+"-"+fileName), nil
}

func mapStorageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}
