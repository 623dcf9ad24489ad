//go:build msi

package msi

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/couchcryptid/msi-broadcast-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the live NGA MSI API.
// Run with: go test -tags=msi ./internal/adapter/msi/ -v -count=1

const liveBaseURL = "https://msi.nga.mil/api/publications/download?type=view&key=16694640/SFH00000/"

func TestSmoke_FetchAndSegment(t *testing.T) {
	c := NewClient(liveBaseURL, 30*time.Second, 3, time.Second,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	seg := domain.NewSegmenter(domain.DefaultHeaderBlocks, nil)

	for _, src := range []string{"HYDROPAC", "HYDROLANT"} {
		t.Run(src, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			b, err := c.Fetch(ctx, src)
			require.NoError(t, err)
			require.NotEmpty(t, strings.TrimSpace(b.Text))

			reports := seg.Split(b)
			assert.NotEmpty(t, reports, "live memorandum should contain warnings")
			t.Logf("%s: %d reports", src, len(reports))
		})
	}
}
