package mssqllog

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// LoadPageCensus loads a previously persisted pageid -> objectid map from
// path, validating it against the MDF's current size: the highest page
// number present as a key must be within the page count implied by
// mdfSize, otherwise the cache is considered stale and the caller should
// fall back to a full rescan.
func LoadPageCensus(path string, mdfSize int64) (PageCensus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mssqllog: reading cache %s: %w", path, err)
	}
	var raw map[string]uint32
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("mssqllog: decoding cache %s: %w", path, err)
	}
	pageCount := uint32(mdfSize / PageSize)
	census := make(PageCensus, len(raw))
	for k, objectID := range raw {
		pageno, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("mssqllog: cache %s has non-numeric page key %q", path, k)
		}
		if uint32(pageno) >= pageCount {
			return nil, fmt.Errorf("mssqllog: cache %s is stale for current MDF size", path)
		}
		census[uint32(pageno)] = objectID
	}
	log.Info().Str("path", path).Int("pages", len(census)).Msg("loaded page census cache")
	return census, nil
}

// SavePageCensus persists the census as JSON mapping decimal page number to
// decimal objectid.
func SavePageCensus(path string, census PageCensus) error {
	raw := make(map[string]uint32, len(census))
	for pageno, objectID := range census {
		raw[strconv.FormatUint(uint64(pageno), 10)] = objectID
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("mssqllog: encoding cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("mssqllog: writing cache %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("pages", len(census)).Msg("wrote page census cache")
	return nil
}
