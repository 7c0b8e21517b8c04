package record

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/council/internal/errors"
)

// Resolve finds a record by reference. A reference is a record ID ("12"),
// "latest", or a 1-based position in the newest-first listing ("~1" is the
// newest, "~2" the one before).
func Resolve(ctx context.Context, store Store, ref string) (*SessionRecord, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "latest":
		return resolveIndex(ctx, store, 1)
	case strings.HasPrefix(ref, "~"):
		n, err := strconv.Atoi(ref[1:])
		if err != nil || n < 1 {
			return nil, errors.NewValidationError("index must be a positive number").
				WithField("ref").
				WithValue(ref)
		}
		return resolveIndex(ctx, store, n)
	}

	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || id == 0 {
		return nil, errors.NewValidationError("expected a session id, \"latest\", or ~N").
			WithField("ref").
			WithValue(ref)
	}
	return store.Get(ctx, id)
}

func resolveIndex(ctx context.Context, store Store, n int) (*SessionRecord, error) {
	list, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	if n > len(list) {
		return nil, errors.NewNotFoundError("session", "~"+strconv.Itoa(n))
	}
	return store.Get(ctx, list[n-1].ID)
}

// History walks the parent chain starting at id and returns up to rounds
// records, oldest first, ending with id itself. rounds <= 0 returns the
// whole chain.
func History(ctx context.Context, store Store, id uint64, rounds int) ([]*SessionRecord, error) {
	var chain []*SessionRecord
	seen := make(map[uint64]bool)
	for next := id; next != 0; {
		if seen[next] {
			break
		}
		seen[next] = true
		rec, err := store.Get(ctx, next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, rec)
		if rounds > 0 && len(chain) >= rounds {
			break
		}
		next = rec.ParentID
	}
	slices.Reverse(chain)
	return chain, nil
}
