// Package idmap maps heterogeneous native references onto the flat numeric
// id space Mastodon clients expect.
//
// The external space is split into bands:
//
//	[0, 1e10)     local posts and users, native id verbatim
//	[1e10, 2e10)  remote actors and comment authors, id_map row + 1e10
//	[2e10, ...)   synthetic wrappers (comments, reblogs, media urls, fetched
//	              remote statuses), id_map row + 2e10
package idmap

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/chao7150/wpmastodon/internal/store"
)

const (
	BandLocal         int64 = 0
	BandRemoteAccount int64 = 10_000_000_000
	BandSynthetic     int64 = 20_000_000_000
)

// Kind names a native reference kind.
type Kind string

const (
	KindLocal         Kind = "local"
	KindRemoteActor   Kind = "remote_actor"
	KindCommentAuthor Kind = "comment_author"
	KindComment       Kind = "comment"
	KindReblog        Kind = "reblog"
	KindMedia         Kind = "media"
	KindRemoteStatus  Kind = "remote_status"
)

// Band returns the offset band a kind is exposed in.
func (k Kind) Band() int64 {
	switch k {
	case KindRemoteActor, KindCommentAuthor:
		return BandRemoteAccount
	case KindComment, KindReblog, KindMedia, KindRemoteStatus:
		return BandSynthetic
	default:
		return BandLocal
	}
}

// Ref is a native reference. Native holds the decimal id for local and
// comment kinds and the url or handle otherwise.
type Ref struct {
	Kind   Kind
	Native string
}

// Int returns Native parsed as an int64.
func (r Ref) Int() (int64, bool) {
	n, err := strconv.ParseInt(r.Native, 10, 64)
	return n, err == nil
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.Native
}

// Local builds a band 0 reference.
func Local(id int64) Ref {
	return Ref{Kind: KindLocal, Native: strconv.FormatInt(id, 10)}
}

var (
	// ErrUnknownID is returned when a banded id has no registered reference.
	ErrUnknownID = errors.New("unknown id")
	// ErrBandOverflow is returned when a native id reaches a higher band.
	ErrBandOverflow = errors.New("native id overflows its band")
)

// Mapper registers and resolves references against the id_map table.
type Mapper struct {
	store *store.Store
}

func New(s *store.Store) *Mapper {
	return &Mapper{store: s}
}

// Hash returns the fixed-length key stored in the unique index.
func Hash(native string) string {
	sum := blake3.Sum256([]byte(native))
	return hex.EncodeToString(sum[:])
}

// Remap returns the external id of ref, registering it on first sight.
func (m *Mapper) Remap(ctx context.Context, ref Ref) (string, error) {
	band := ref.Kind.Band()
	if band == BandLocal {
		n, ok := ref.Int()
		if !ok {
			return "", fmt.Errorf("local reference %q is not numeric", ref.Native)
		}
		if n >= BandRemoteAccount {
			return "", fmt.Errorf("%w: %d", ErrBandOverflow, n)
		}
		return ref.Native, nil
	}
	row, err := m.store.GetOrCreateMapping(ctx, string(ref.Kind), ref.Native, Hash(ref.Native))
	if err != nil {
		return "", fmt.Errorf("remap %s: %w", ref, err)
	}
	if row.Id >= BandSynthetic-BandRemoteAccount {
		return "", fmt.Errorf("%w: id_map row %d", ErrBandOverflow, row.Id)
	}
	return strconv.FormatInt(band+row.Id, 10), nil
}

// Resolve inverts Remap. Ids in band 0, and ids that are not numeric at all,
// pass through as local references.
func (m *Mapper) Resolve(ctx context.Context, id string) (Ref, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < BandRemoteAccount {
		return Ref{Kind: KindLocal, Native: id}, nil
	}
	band := BandRemoteAccount
	if n >= BandSynthetic {
		band = BandSynthetic
	}
	row, err := m.store.SelectMapping(ctx, n-band)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Ref{}, fmt.Errorf("%w: %s", ErrUnknownID, id)
		}
		return Ref{}, fmt.Errorf("resolve %s: %w", id, err)
	}
	ref := Ref{Kind: Kind(row.Kind), Native: row.NativeRef}
	if ref.Kind.Band() != band {
		return Ref{}, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	return ref, nil
}

// CheckBands fails when any native table has grown into the remote band.
func CheckBands(maxIDs map[string]int64) error {
	for table, max := range maxIDs {
		limit := BandRemoteAccount
		if table == "id_map" {
			limit = BandSynthetic - BandRemoteAccount
		}
		if max >= limit {
			return fmt.Errorf("%w: %s has id %d, band limit %d", ErrBandOverflow, table, max, limit)
		}
	}
	return nil
}
