package nexusmods

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	graphql "github.com/hasura/go-graphql-client"

	"nexusbridge/internal/domain"
)

// ArchiveExtractor unpacks an archive into a directory. The installer's
// extractor satisfies this; the client stays free of extraction concerns.
type ArchiveExtractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// ArchiveDownloader fetches a URL to a local file. Satisfied by the
// installer's downloader.
type ArchiveDownloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// apiKeyTransport injects the apikey header into every GraphQL request
type apiKeyTransport struct {
	apiKey    string
	userAgent string
	base      http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("apikey", t.apiKey)
	req.Header.Set("User-Agent", t.userAgent)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// graphqlClient lazily builds the hasura client so tests can point baseURL /
// graphqlURL at an httptest server before the first query.
func (c *Client) graphqlClient() *graphql.Client {
	httpClient := &http.Client{
		Timeout: overallTimeout,
		Transport: &apiKeyTransport{
			apiKey:    c.apiKey,
			userAgent: c.userAgent,
		},
	}
	return graphql.NewClient(c.graphqlURL, httpClient)
}

// ResolveCollection queries the GraphQL API for a collection's latest
// published revision and its archive download link.
func (c *Client) ResolveCollection(ctx context.Context, gameDomain, slug string) (*CollectionInfo, error) {
	if err := c.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	var q struct {
		Collection struct {
			Name string `graphql:"name"`
			Game struct {
				DomainName string `graphql:"domainName"`
			} `graphql:"game"`
			LatestPublishedRevision struct {
				RevisionNumber int    `graphql:"revisionNumber"`
				DownloadLink   string `graphql:"downloadLink"`
			} `graphql:"latestPublishedRevision"`
		} `graphql:"collection(slug: $slug, viewAdultContent: true)"`
	}

	variables := map[string]interface{}{
		"slug": graphql.String(slug),
	}

	if err := c.graphqlClient().Query(ctx, &q, variables); err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", slug, err)
	}

	info := &CollectionInfo{
		Name:           q.Collection.Name,
		Slug:           slug,
		GameDomain:     q.Collection.Game.DomainName,
		RevisionNumber: q.Collection.LatestPublishedRevision.RevisionNumber,
		DownloadLink:   q.Collection.LatestPublishedRevision.DownloadLink,
	}
	if info.GameDomain == "" {
		info.GameDomain = gameDomain
	}
	if info.DownloadLink == "" {
		return nil, fmt.Errorf("collection %q has no published revision", slug)
	}
	return info, nil
}

// FetchCollection downloads the latest published revision of a collection,
// extracts collection.json from the revision archive, writes it into destDir
// as collection_<slug>.json and returns that path. The extracted original is
// removed with the scratch directory.
func (c *Client) FetchCollection(ctx context.Context, gameDomain, slug, destDir string, dl ArchiveDownloader, ex ArchiveExtractor) (string, error) {
	info, err := c.ResolveCollection(ctx, gameDomain, slug)
	if err != nil {
		return "", err
	}

	scratch, err := os.MkdirTemp("", "nexusbridge-collection-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	archivePath := filepath.Join(scratch, "collection.zip")
	url := EncodeURLSpaces(info.DownloadLink)
	if err := dl.Download(ctx, url, archivePath); err != nil {
		return "", fmt.Errorf("downloading collection archive: %w", err)
	}

	unpacked := filepath.Join(scratch, "unpacked")
	if err := ex.Extract(ctx, archivePath, unpacked); err != nil {
		return "", fmt.Errorf("unpacking collection archive: %w", err)
	}

	descriptor, err := findDescriptor(unpacked)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating destination: %w", err)
	}
	outPath := filepath.Join(destDir, fmt.Sprintf("collection_%s.json", domain.SanitizeFileName(slug)))
	data, err := os.ReadFile(descriptor)
	if err != nil {
		return "", fmt.Errorf("reading extracted descriptor: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing descriptor copy: %w", err)
	}
	return outPath, nil
}

// findDescriptor locates collection.json in the unpacked revision archive
func findDescriptor(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(d.Name(), "collection.json") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("searching for collection.json: %w", err)
	}
	if found == "" {
		return "", errors.New("collection archive does not contain collection.json")
	}
	return found, nil
}
