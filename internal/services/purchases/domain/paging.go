package domain

import (
	"encoding/base64"
	"strconv"
	"strings"

	apperrors "github.com/eventpass/eventpass/internal/platform/errors"
	"github.com/eventpass/eventpass/internal/services/purchases/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	pageTokenPrefix = "offset:"
)

// PageRequest selects a page of a list operation. PageToken is the opaque
// value returned as NextPageToken by the previous page.
type PageRequest struct {
	PageSize  int
	PageToken string
}

// storagePage resolves the request into a storage page that asks for one
// extra row to detect whether another page follows.
func (r PageRequest) storagePage() (storage.Page, error) {
	size := r.PageSize
	switch {
	case size < 0:
		return storage.Page{}, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "page size must not be negative", map[string]string{"Field": "page_size"})
	case size == 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	offset, err := decodePageToken(r.PageToken)
	if err != nil {
		return storage.Page{}, err
	}
	return storage.Page{Limit: size + 1, Offset: offset}, nil
}

// trimPage drops the lookahead row and returns the token for the next page.
func trimPage[T any](items []T, page storage.Page) ([]T, string) {
	size := page.Limit - 1
	if len(items) <= size {
		return items, ""
	}
	return items[:size], encodePageToken(page.Offset + size)
}

func encodePageToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(pageTokenPrefix + strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	invalid := apperrors.WithMetadata(apperrors.CodeInvalidArgument, "invalid page token", map[string]string{"Field": "page_token"})
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, invalid
	}
	value, ok := strings.CutPrefix(string(raw), pageTokenPrefix)
	if !ok {
		return 0, invalid
	}
	offset, err := strconv.Atoi(value)
	if err != nil || offset < 0 {
		return 0, invalid
	}
	return offset, nil
}
