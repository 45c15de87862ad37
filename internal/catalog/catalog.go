package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/toolbay/trade-service/internal/domain"
)

// Listing is the catalog snapshot copied into a new offer. It is read
// once at creation and never re-synced.
type Listing struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	SellerID string  `json:"seller_id"`
}

// Catalog supplies the listing snapshot for a tool id.
type Catalog interface {
	Lookup(ctx context.Context, toolID string) (*Listing, error)
}

// HTTPCatalog talks to the listing service. Reads retry with backoff;
// they are idempotent, unlike the store mutations downstream.
type HTTPCatalog struct {
	base       string
	http       *http.Client
	maxElapsed time.Duration
}

func NewHTTPCatalog(base string, timeout, maxElapsed time.Duration) *HTTPCatalog {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	return &HTTPCatalog{
		base:       base,
		http:       &http.Client{Transport: tr, Timeout: timeout},
		maxElapsed: maxElapsed,
	}
}

func (c *HTTPCatalog) Lookup(ctx context.Context, toolID string) (*Listing, error) {
	var out *Listing
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/tools/"+toolID, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(domain.ErrNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("catalog responded %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("catalog responded %d", resp.StatusCode))
		}
		var l Listing
		if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
			return backoff.Permanent(err)
		}
		out = &l
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if err == domain.ErrNotFound {
			return nil, &domain.ValidationError{Field: "tool_id", Reason: "no such listing"}
		}
		return nil, &domain.TransientError{Op: "catalog lookup", Err: err}
	}
	return out, nil
}

// Static serves lookups from a fixed map; used in tests and local runs
// without a catalog service.
type Static map[string]*Listing

func (s Static) Lookup(ctx context.Context, toolID string) (*Listing, error) {
	l, ok := s[toolID]
	if !ok {
		return nil, &domain.ValidationError{Field: "tool_id", Reason: "no such listing"}
	}
	cp := *l
	return &cp, nil
}
