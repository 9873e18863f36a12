package s3blob

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Pruner enforces the snapshot retention policy by deleting the objects of
// runs older than the newest N under the archive prefix.
type Pruner struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewPruner creates a Pruner operating under the same prefix the archiver
// writes to.
func NewPruner(c *Client, prefix string) *Pruner {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Pruner{
		client: c.S3(),
		bucket: c.Bucket(),
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

// PruneSnapshots deletes every archived run except the newest keep runs and
// returns the number of objects removed. keep <= 0 is a no-op. Deletion is
// idempotent: a key removed by a concurrent pruner does not fail the pass.
func (p *Pruner) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	keys, err := p.listKeys(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range staleKeys(keys, keep) {
		_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return removed, fmt.Errorf("s3blob: prune %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// listKeys collects every object key under the archive prefix, following
// ContinuationTokens until the listing is exhausted.
func (p *Pruner) listKeys(ctx context.Context) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.prefix + "/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list prefix %s: %w", p.prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// staleKeys groups keys by their run-<version> path segment and returns the
// keys of every run except the keep numerically newest. Keys outside a
// run-<version> directory are never deleted.
func staleKeys(keys []string, keep int) []string {
	byRun := make(map[int64][]string)
	for _, key := range keys {
		version, ok := runVersionOf(key)
		if !ok {
			continue
		}
		byRun[version] = append(byRun[version], key)
	}
	if len(byRun) <= keep {
		return nil
	}

	versions := make([]int64, 0, len(byRun))
	for v := range byRun {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	var stale []string
	for _, v := range versions[keep:] {
		stale = append(stale, byRun[v]...)
	}
	sort.Strings(stale)
	return stale
}

// runVersionOf extracts the run version from a key shaped
// <prefix>/run-<version>/<file>.
func runVersionOf(key string) (int64, bool) {
	for _, segment := range strings.Split(key, "/") {
		rest, found := strings.CutPrefix(segment, "run-")
		if !found {
			continue
		}
		version, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return 0, false
		}
		return version, true
	}
	return 0, false
}
