package usecase

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"firmadoc/internal/domain"
)

// IntegrityService computes and checks content digests. Contracts carry
// a dual digest so a collision against one hash alone proves nothing.
type IntegrityService struct {
	Clock Clock
}

func (s *IntegrityService) Digest(content []byte) domain.ContentDigest {
	sum512 := sha512.Sum512(content)
	sum256 := sha256.Sum256(content)
	return domain.ContentDigest{
		SHA512:    hex.EncodeToString(sum512[:]),
		SHA256:    hex.EncodeToString(sum256[:]),
		Size:      int64(len(content)),
		Timestamp: s.Clock().UTC(),
	}
}

// Compare checks content against a baseline digest. The returned
// mismatches name each field that diverged; an empty slice means intact.
func (s *IntegrityService) Compare(baseline *domain.ContentDigest, content []byte) []string {
	if baseline == nil {
		return []string{"no baseline digest"}
	}
	current := s.Digest(content)
	var mismatches []string
	if current.SHA512 != baseline.SHA512 {
		mismatches = append(mismatches, "sha512")
	}
	if current.SHA256 != baseline.SHA256 {
		mismatches = append(mismatches, "sha256")
	}
	if current.Size != baseline.Size {
		mismatches = append(mismatches, fmt.Sprintf("size %d != %d", current.Size, baseline.Size))
	}
	return mismatches
}

// ManifestEntry is one contract's line in a checksum manifest.
type ManifestEntry struct {
	ContractID string
	FileName   string
	SHA512     string
	SHA256     string
	Size       int64
}

// ChecksumManifest is a point-in-time snapshot of every contract's
// digest, plus a digest over the manifest itself so the snapshot can be
// verified later.
type ChecksumManifest struct {
	Entries     []ManifestEntry
	ManifestSHA string
	GeneratedAt string
}

func (s *IntegrityService) BuildManifest(contracts []domain.ContractDocument) ChecksumManifest {
	manifest := ChecksumManifest{
		GeneratedAt: s.Clock().UTC().Format("2006-01-02T15:04:05Z"),
	}
	h := sha256.New()
	for i := range contracts {
		c := &contracts[i]
		if c.Digest == nil {
			continue
		}
		entry := ManifestEntry{
			ContractID: c.ID,
			FileName:   c.FileName,
			SHA512:     c.Digest.SHA512,
			SHA256:     c.Digest.SHA256,
			Size:       c.Digest.Size,
		}
		manifest.Entries = append(manifest.Entries, entry)
		fmt.Fprintf(h, "%s %s %s %d\n", entry.ContractID, entry.SHA512, entry.SHA256, entry.Size)
	}
	manifest.ManifestSHA = hex.EncodeToString(h.Sum(nil))
	return manifest
}

// StorageStatistics aggregates compression effectiveness across a set
// of contracts.
type StorageStatistics struct {
	TotalContracts          int
	TotalOriginalSize       int64
	TotalCompressedSize     int64
	AverageCompressionRatio float64
	SpaceSaved              int64
}

func CalculateStorageStatistics(contracts []domain.ContractDocument) StorageStatistics {
	stats := StorageStatistics{TotalContracts: len(contracts)}
	for i := range contracts {
		if contracts[i].Compression == nil {
			continue
		}
		stats.TotalOriginalSize += contracts[i].Compression.OriginalSize
		stats.TotalCompressedSize += contracts[i].Compression.CompressedSize
	}
	if stats.TotalCompressedSize > 0 {
		stats.AverageCompressionRatio = float64(stats.TotalOriginalSize) / float64(stats.TotalCompressedSize)
		stats.SpaceSaved = stats.TotalOriginalSize - stats.TotalCompressedSize
	}
	return stats
}
