package feed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/gov"
)

// MaxMetadataBytes is the largest anchored metadata document accepted.
const MaxMetadataBytes = 1_000_000

// MetadataFetcher downloads the off-chain metadata document a proposal
// anchors. Any rejection yields "no metadata", never an error.
type MetadataFetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewMetadataFetcher creates a fetcher. timeout defaults to 10s.
func NewMetadataFetcher(timeout time.Duration, logger *zap.Logger) *MetadataFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MetadataFetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("metadata"),
	}
}

// Fetch downloads url and decodes it as a JSON object. The document is
// rejected if the response is not JSON, is larger than MaxMetadataBytes, or
// does not hash (SHA-256, hex, case-insensitive) to expectedHash when one is
// given.
func (m *MetadataFetcher) Fetch(ctx context.Context, url, expectedHash string) (map[string]any, bool) {
	body, err := m.download(ctx, url)
	if err != nil {
		m.logger.Debug("metadata rejected", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	if expectedHash != "" {
		sum := sha256.Sum256(body)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), strings.TrimSpace(expectedHash)) {
			m.logger.Debug("metadata hash mismatch", zap.String("url", url))
			return nil, false
		}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		m.logger.Debug("metadata is not a JSON object", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	return doc, true
}

// Enrich fills meta_json from meta_url when the feed did not inline it.
func (m *MetadataFetcher) Enrich(ctx context.Context, p gov.Raw) {
	if _, ok := p.Object(gov.FieldMetaJSON); ok {
		return
	}
	url, ok := p.String(gov.FieldMetaURL)
	if !ok {
		return
	}
	hash, _ := p.String(gov.FieldMetaHash)
	if doc, ok := m.Fetch(ctx, url, hash); ok {
		p[gov.FieldMetaJSON] = doc
	}
}

func (m *MetadataFetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, fmt.Errorf("content type %q is not JSON", resp.Header.Get("Content-Type"))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxMetadataBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxMetadataBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", MaxMetadataBytes)
	}
	return body, nil
}
