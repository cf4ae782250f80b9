package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
)

// Search executes a query in the given mode
func (u *UseCases) Search(ctx context.Context, query string, mode types.SearchMode, limit int) (*model.SearchResponse, error) {
	if u.searchSvc == nil {
		return nil, goerr.New("search service is not configured")
	}
	return u.searchSvc.Search(ctx, query, mode, limit)
}

// RelatedNotes surfaces the nearest neighbors of a seed note
func (u *UseCases) RelatedNotes(ctx context.Context, seedID model.NoteID, limit int) (*model.SearchResponse, error) {
	if u.searchSvc == nil {
		return nil, goerr.New("search service is not configured")
	}
	return u.searchSvc.Related(ctx, seedID, limit)
}

// DiscoverNotes surfaces notes near the recently updated part of the corpus
func (u *UseCases) DiscoverNotes(ctx context.Context, limit int) (*model.SearchResponse, error) {
	if u.searchSvc == nil {
		return nil, goerr.New("search service is not configured")
	}
	return u.searchSvc.Discover(ctx, limit)
}
