package repository

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/transport"
)

// Items returns one page of the item catalog sorted by name. Pages are never
// cached. A missing page is returned as an empty one.
func (r *Repository) Items(ctx context.Context, page, size int, forceRefresh bool) (catalog.Page, error) {
	ctx, span := r.tracer.Start(ctx, "repository.Items",
		trace.WithAttributes(attribute.Int("page", page), attribute.Int("size", size)),
	)
	defer span.End()

	q := url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
		"sort": {"name,asc"},
	}
	if forceRefresh {
		q.Set("_t", strconv.FormatInt(r.now().UnixMilli(), 10))
	}

	resp, err := r.client.Do(ctx, http.MethodGet, "/item", transport.Query(q))
	if err != nil {
		if transport.IsNotFound(err) {
			r.lg.Warn("Item page not found, returning empty page", zap.Int("page", page))
			return catalog.EmptyPage(page, size), nil
		}
		r.handleError(ctx, err)
		return catalog.Page{}, err
	}

	var p catalog.Page
	if err := p.Decode(jx.DecodeBytes(resp.Body)); err != nil {
		return catalog.Page{}, errors.Wrap(err, "decode items")
	}
	return p, nil
}
