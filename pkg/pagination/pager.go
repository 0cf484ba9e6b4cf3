package pagination

import (
	"context"
	"encoding/json"

	"github.com/coursekit/canvas-client/pkg/canvas"
	"github.com/coursekit/canvas-client/pkg/seq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_pages_fetched_total",
		Help: "Total pages fetched through pagination",
	})

	itemsYieldedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_items_yielded_total",
		Help: "Total items yielded through pagination",
	})
)

// PageGetter is the client surface pagination needs: building the first
// page URL and fetching one fully-formed URL.
type PageGetter interface {
	URL(endpoint string, params canvas.Params) (string, error)
	GetPage(ctx context.Context, rawurl string, opts ...canvas.CallOption) (*canvas.Response, error)
}

// Pager produces lazy page and item sequences over a Canvas client.
type Pager struct {
	client PageGetter
	logger zerolog.Logger
}

// NewPager creates a pager over client.
func NewPager(client PageGetter) *Pager {
	return &Pager{
		client: client,
		logger: log.With().Str("component", "canvas-pagination").Logger(),
	}
}

// Pages returns a lazy sequence of page envelopes, one request per page.
// The sequence ends naturally when a page carries no rel="next" link.
func (p *Pager) Pages(endpoint string, params canvas.Params, opts ...canvas.CallOption) seq.Seq[*canvas.Response] {
	return &pageSeq{
		pager:    p,
		endpoint: endpoint,
		params:   params,
		opts:     opts,
	}
}

// Items returns a lazy sequence of the elements of each page's list
// body, flattened in order. A page whose body is not a list fails the
// sequence with a PaginationError; single-object resources must use
// Pages instead.
func (p *Pager) Items(endpoint string, params canvas.Params, opts ...canvas.CallOption) seq.Seq[json.RawMessage] {
	return &itemSeq{
		pages: p.Pages(endpoint, params, opts...),
	}
}

type pageSeq struct {
	pager    *Pager
	endpoint string
	params   canvas.Params
	opts     []canvas.CallOption

	next    string
	started bool
	done    bool
}

func (s *pageSeq) Next(ctx context.Context) (*canvas.Response, bool, error) {
	if s.done {
		return nil, false, nil
	}

	// The original query parameters apply to the first request only;
	// every later URL comes verbatim from the Link header.
	if !s.started {
		u, err := s.pager.client.URL(s.endpoint, s.params)
		if err != nil {
			s.done = true
			return nil, false, err
		}
		s.next = u
		s.started = true
	}

	if s.next == "" {
		s.done = true
		return nil, false, nil
	}

	resp, err := s.pager.client.GetPage(ctx, s.next, s.opts...)
	if err != nil {
		s.done = true
		return nil, false, err
	}
	pagesFetchedTotal.Inc()

	if u, ok := NextURL(resp.Header); ok {
		s.next = u
	} else {
		s.pager.logger.Debug().
			Str("endpoint", s.endpoint).
			Msg("No next link, pagination complete")
		s.next = ""
	}

	return resp, true, nil
}

type itemSeq struct {
	pages seq.Seq[*canvas.Response]
	buf   []json.RawMessage
	pos   int
	done  bool
}

func (s *itemSeq) Next(ctx context.Context) (json.RawMessage, bool, error) {
	if s.done {
		return nil, false, nil
	}

	for s.pos >= len(s.buf) {
		page, ok, err := s.pages.Next(ctx)
		if err != nil || !ok {
			s.done = true
			return nil, false, err
		}
		items, ok := page.List()
		if !ok {
			s.done = true
			return nil, false, &canvas.PaginationError{Response: page}
		}
		s.buf = items
		s.pos = 0
	}

	item := s.buf[s.pos]
	s.pos++
	itemsYieldedTotal.Inc()
	return item, true, nil
}
