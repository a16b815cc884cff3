// Package findchain implements chained pagination over a store.Store Find
// call: the store caps each reply at store.DefaultPageSize rows and returns
// a Next cursor when more rows remain, so a caller that wants "all matching
// rows" must keep resubmitting the query with the returned page cursor
// until Next comes back empty.
//
// Grounded on the original implementation's Db8FindChainCall
// (sendFindRequest / cbDb8FindCall): each reply is inspected for a "next"
// cursor, and while one is present the same query is resent with that
// cursor instead of returning to the caller.
package findchain

import (
	"context"

	"settingsvc/internal/store"
)

// All runs q against st repeatedly, following Next cursors, and returns the
// concatenation of every page's Results. It stops at the first page whose
// reply has no Next cursor, or the first error.
func All(ctx context.Context, st store.Store, q store.Query) ([]store.Record, error) {
	var all []store.Record
	page := q
	for {
		res, err := st.Find(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Results...)
		if res.Next == "" {
			return all, nil
		}
		page.Page = res.Next
	}
}

// ForEach is All's streaming counterpart: it invokes fn once per page's
// Results slice instead of accumulating everything in memory, useful for a
// maintenance sweep that wants to process many rows without holding them
// all at once (SPEC_FULL §4.4.6).
func ForEach(ctx context.Context, st store.Store, q store.Query, fn func([]store.Record) error) error {
	page := q
	for {
		res, err := st.Find(ctx, page)
		if err != nil {
			return err
		}
		if err := fn(res.Results); err != nil {
			return err
		}
		if res.Next == "" {
			return nil
		}
		page.Page = res.Next
	}
}
