// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sync keeps the on-disk asset set and the local track index
// consistent with the remote catalog. Downloads are pulled in bounded
// batches; orphan files already on disk are reconciled against catalog
// metadata by the reindex pass.
package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/koro-app/koro/internal/models"
	"github.com/koro-app/koro/internal/remote"
)

const assetExt = ".mp4"

// Gateway is the slice of the remote client the synchronizer depends on.
type Gateway interface {
	FetchCatalog(ctx context.Context) ([]remote.CatalogEntry, error)
	Download(ctx context.Context, url, destPath string) (int64, error)
}

// OfflineStatus reports local holdings and, when the remote is reachable,
// how much of the catalog is still online-only.
type OfflineStatus struct {
	TotalTracks      int64   `json:"totalTracks"`
	OfflineTracks    int64   `json:"offlineTracks"`
	OnlineOnlyTracks int64   `json:"onlineOnlyTracks"`
	BytesUsed        int64   `json:"bytesUsed"`
	BytesUsedMB      float64 `json:"bytesUsedMB"`
}

// DownloadResult is the outcome of one download batch. Per-item failures
// accumulate in Errors and never abort the batch.
type DownloadResult struct {
	Downloaded int      `json:"downloaded"`
	Remaining  int64    `json:"remaining"`
	Errors     []string `json:"errors"`
}

// ReindexResult is the outcome of one reindex pass.
type ReindexResult struct {
	TotalFiles int      `json:"totalFiles"`
	Reindexed  int      `json:"reindexed"`
	Errors     []string `json:"errors"`
}

type Service struct {
	tracks  *models.TrackStore
	gateway Gateway
	dataDir string
}

func NewService(tracks *models.TrackStore, gateway Gateway, dataDir string) *Service {
	return &Service{
		tracks:  tracks,
		gateway: gateway,
		dataDir: dataDir,
	}
}

// TracksDir is where downloaded assets live.
func (s *Service) TracksDir() string {
	return filepath.Join(s.dataDir, "tracks")
}

// ResolveAssetPath maps a code to its on-disk asset, trying every
// candidate code form. Returns ErrAssetNotFound when no form matches.
func (s *Service) ResolveAssetPath(code string) (string, error) {
	for _, candidate := range models.CandidateCodes(code) {
		path := filepath.Join(s.TracksDir(), candidate+assetExt)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Wrapf(ErrAssetNotFound, "code %s", code)
}

var ErrAssetNotFound = errors.New("asset not found on disk")

// hasAsset reports whether any candidate form of the code has an on-disk
// asset file.
func (s *Service) hasAsset(code string) bool {
	_, err := s.ResolveAssetPath(code)
	return err == nil
}

// isIndexed reports whether any candidate form of the code has a local
// store record.
func (s *Service) isIndexed(ctx context.Context, code string) (bool, error) {
	for _, candidate := range models.CandidateCodes(code) {
		exists, err := s.tracks.Exists(ctx, candidate)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// GetOfflineStatus always reports local counts and disk usage; catalog
// totals are added when the remote is reachable, otherwise local counts
// stand in for all fields.
func (s *Service) GetOfflineStatus(ctx context.Context) (*OfflineStatus, error) {
	localCount, err := s.tracks.Count(ctx)
	if err != nil {
		return nil, err
	}

	bytesUsed, err := s.tracks.TotalBytes(ctx)
	if err != nil {
		return nil, err
	}

	total := localCount
	onlineOnly := int64(0)

	if catalog, err := s.gateway.FetchCatalog(ctx); err == nil {
		total = int64(len(catalog))
		onlineOnly = total - localCount
		if onlineOnly < 0 {
			onlineOnly = 0
		}
	} else {
		log.Debug().Err(err).Msg("Catalog unreachable, reporting local counts only")
	}

	return &OfflineStatus{
		TotalTracks:      total,
		OfflineTracks:    localCount,
		OnlineOnlyTracks: onlineOnly,
		BytesUsed:        bytesUsed,
		BytesUsedMB:      float64(bytesUsed) / (1024.0 * 1024.0),
	}, nil
}

// DownloadBatch fetches up to batchSize missing assets in catalog order.
// A catalog fetch failure is fatal to the call; per-item failures are
// collected and never abort the batch. A downloaded file whose index
// insert fails is deleted again: an unindexed asset must never remain on
// disk.
func (s *Service) DownloadBatch(ctx context.Context, batchSize int) (*DownloadResult, error) {
	if batchSize <= 0 {
		batchSize = 3
	}

	if err := os.MkdirAll(s.TracksDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create tracks directory: %w", err)
	}

	catalog, err := s.gateway.FetchCatalog(ctx)
	if err != nil {
		return nil, err
	}

	var pending []remote.CatalogEntry
	for _, entry := range catalog {
		indexed, err := s.isIndexed(ctx, entry.Code)
		if err != nil {
			return nil, err
		}
		if !s.hasAsset(entry.Code) || !indexed {
			pending = append(pending, entry)
		}
	}

	totalPending := int64(len(pending))
	batch := pending
	if len(batch) > batchSize {
		batch = batch[:batchSize]
	}

	log.Info().
		Int("batch", len(batch)).
		Int64("pending", totalPending).
		Msg("Downloading batch")

	result := &DownloadResult{Errors: []string{}}

	for _, entry := range batch {
		dest := filepath.Join(s.TracksDir(), entry.Code+assetExt)

		size, err := s.gateway.Download(ctx, entry.AssetURL, dest)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Code, err))
			continue
		}

		track := trackFromCatalog(entry, dest, size)
		if err := s.tracks.Insert(ctx, track); err != nil {
			// Rollback: a downloaded file without an index record must
			// never remain on disk.
			if rmErr := os.Remove(dest); rmErr != nil {
				log.Error().Err(rmErr).Str("path", dest).Msg("Failed to remove unindexed download")
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: index error: %v", entry.Code, err))
			continue
		}

		log.Info().
			Str("code", entry.Code).
			Int64("bytes", size).
			Msg("Track downloaded")
		result.Downloaded++
	}

	result.Remaining = totalPending - int64(result.Downloaded)

	return result, nil
}

// ReindexTracks attributes on-disk asset files that have no index record
// to catalog metadata. Orphans without a catalog match are left untouched.
// A catalog fetch failure is non-fatal: orphans cannot be attributed
// without remote metadata, so the pass reports zero with a note.
func (s *Service) ReindexTracks(ctx context.Context) (*ReindexResult, error) {
	result := &ReindexResult{Errors: []string{}}

	entries, err := os.ReadDir(s.TracksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read tracks directory: %w", err)
	}

	var files []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), assetExt) {
			continue
		}
		files = append(files, entry)
	}
	result.TotalFiles = len(files)

	catalog, err := s.gateway.FetchCatalog(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("offline: %v", err))
		return result, nil
	}

	byCode := make(map[string]remote.CatalogEntry, len(catalog))
	for _, entry := range catalog {
		byCode[entry.Code] = entry
	}

	for _, file := range files {
		code := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		if code == "" {
			continue
		}

		indexed, err := s.isIndexed(ctx, code)
		if err != nil {
			return nil, err
		}
		if indexed {
			continue
		}

		entry, ok := matchCatalog(byCode, code)
		if !ok {
			// Not an error: the file may belong to another owner or a
			// removed catalog entry.
			continue
		}

		path := filepath.Join(s.TracksDir(), file.Name())
		var size int64
		if info, err := file.Info(); err == nil {
			size = info.Size()
		}

		track := trackFromCatalog(entry, path, size)
		if err := s.tracks.Insert(ctx, track); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", code, err))
			continue
		}

		log.Info().Str("code", code).Msg("Track reindexed")
		result.Reindexed++
	}

	return result, nil
}

// matchCatalog looks a file-derived code up in the catalog, trying every
// candidate form in order. First match wins.
func matchCatalog(byCode map[string]remote.CatalogEntry, code string) (remote.CatalogEntry, bool) {
	for _, candidate := range models.CandidateCodes(code) {
		if entry, ok := byCode[candidate]; ok {
			return entry, true
		}
	}
	return remote.CatalogEntry{}, false
}

func trackFromCatalog(entry remote.CatalogEntry, localPath string, size int64) *models.Track {
	track := &models.Track{
		ID:        entry.ID,
		Code:      entry.Code,
		Artist:    entry.Artist,
		Title:     entry.Title,
		LocalPath: localPath,
		FileName:  entry.FileName,
		Duration:  entry.Duration.Int64(),
		OwnerID:   entry.OwnerID,
	}
	if size > 0 {
		track.Size = &size
	} else if s := entry.Size.Int64(); s != nil {
		track.Size = s
	}
	return track
}
