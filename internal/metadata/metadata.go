package metadata

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"holders-backend/internal/models"
	"holders-backend/internal/rpc"
	"holders-backend/internal/utils"
)

var errNoAsset = errors.New("asset not found")

// AssetSource fetches a digital-asset record
type AssetSource interface {
	GetAsset(ctx context.Context, id string) (*rpc.Asset, error)
}

// Service resolves display metadata for token mints. Lookups for the same id
// share one provider call; successful results are cached for the process
// lifetime.
type Service struct {
	source AssetSource
	group  singleflight.Group

	mu    sync.RWMutex
	cache map[string]models.TokenMetadata
}

// NewService creates a metadata service reading from source
func NewService(source AssetSource) *Service {
	return &Service{
		source: source,
		cache:  make(map[string]models.TokenMetadata),
	}
}

// Lookup returns metadata for id. It never fails: any provider error or
// missing asset degrades to the placeholder, which is not cached.
func (s *Service) Lookup(ctx context.Context, id string) models.TokenMetadata {
	if md, ok := s.Cached(id); ok {
		return md
	}

	v, err, shared := s.group.Do(id, func() (interface{}, error) {
		asset, err := s.source.GetAsset(ctx, id)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, errNoAsset
		}

		md := fromAsset(id, asset)
		s.mu.Lock()
		s.cache[id] = md
		s.mu.Unlock()
		return md, nil
	})
	if err != nil {
		utils.MetadataLogger.Warn("Failed to fetch token info for %s: %v", utils.ShortAddress(id), err)
		return models.PlaceholderMetadata(id)
	}
	if shared {
		utils.MetadataLogger.Debug("Shared metadata lookup for %s", utils.ShortAddress(id))
	}
	return v.(models.TokenMetadata)
}

// Cached returns the cached metadata for id, if any
func (s *Service) Cached(id string) (models.TokenMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.cache[id]
	return md, ok
}

func fromAsset(id string, asset *rpc.Asset) models.TokenMetadata {
	md := models.TokenMetadata{
		ID:     id,
		Name:   asset.Content.Metadata.Name,
		Symbol: asset.Content.Metadata.Symbol,
		Logo:   asset.Content.Links.Image,
	}
	if md.Name == "" {
		md.Name = models.PlaceholderName
	}
	if md.Logo == "" {
		md.Logo = models.PlaceholderLogo
	}
	return md
}
