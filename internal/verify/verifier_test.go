package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/store"
)

// fakeReader serves canned artifacts for one job
type fakeReader struct {
	stagingStatus string
	stagingErr    error
	serp          *store.SerpRecord
	serpErr       error
	adIDs         []string
	adIDsErr      error
	ads           map[string]bool
	adExistsErr   error
	renderings    int
	renderingsErr error
}

func (f *fakeReader) StagingStatus(context.Context, string) (string, error) {
	return f.stagingStatus, f.stagingErr
}

func (f *fakeReader) SerpByJob(context.Context, string) (*store.SerpRecord, error) {
	return f.serp, f.serpErr
}

func (f *fakeReader) AdIDsForSerp(context.Context, string) ([]string, error) {
	return f.adIDs, f.adIDsErr
}

func (f *fakeReader) AdExists(_ context.Context, adID string) (bool, error) {
	return f.ads[adID], f.adExistsErr
}

func (f *fakeReader) RenderingCount(context.Context, string) (int, error) {
	return f.renderings, f.renderingsErr
}

func healthyReader() *fakeReader {
	return &fakeReader{
		stagingStatus: store.StagingProcessed,
		serp:          &store.SerpRecord{ID: "serp-1", JobID: "job-1"},
		adIDs:         []string{"ad-1", "ad-2"},
		ads:           map[string]bool{"ad-1": true, "ad-2": true},
		renderings:    1,
	}
}

func TestVerifyFullyProcessed(t *testing.T) {
	v := NewVerifier(healthyReader(), zap.NewNop())

	report, err := v.Verify(context.Background(), "job-1")
	require.NoError(t, err)

	assert.True(t, report.StagingProcessed)
	assert.True(t, report.SerpExists)
	assert.True(t, report.HasAdLinks)
	assert.True(t, report.AdsResolve)
	assert.True(t, report.HasRenderings)
	assert.True(t, report.IsFullyProcessed)
	assert.False(t, report.ReprocessRecommended)
}

func TestVerifyRenderingsNeverGateFitness(t *testing.T) {
	r := healthyReader()
	r.renderings = 0
	v := NewVerifier(r, zap.NewNop())

	report, err := v.Verify(context.Background(), "job-1")
	require.NoError(t, err)

	assert.False(t, report.HasRenderings)
	assert.True(t, report.IsFullyProcessed)
	assert.False(t, report.ReprocessRecommended)
}

func TestVerifyMissingStagingRecord(t *testing.T) {
	r := healthyReader()
	r.stagingErr = store.ErrNotFound
	v := NewVerifier(r, zap.NewNop())

	report, err := v.Verify(context.Background(), "job-1")
	require.NoError(t, err)

	assert.False(t, report.StagingProcessed)
	assert.True(t, report.SerpExists)
	assert.False(t, report.IsFullyProcessed)
	assert.True(t, report.ReprocessRecommended)
}

func TestVerifyDanglingAdReference(t *testing.T) {
	r := healthyReader()
	r.ads["ad-2"] = false
	v := NewVerifier(r, zap.NewNop())

	report, err := v.Verify(context.Background(), "job-1")
	require.NoError(t, err)

	assert.True(t, report.HasAdLinks)
	assert.False(t, report.AdsResolve)
	assert.False(t, report.IsFullyProcessed)
	assert.True(t, report.ReprocessRecommended)
}

func TestVerifyMissingSerpSkipsDownstreamChecks(t *testing.T) {
	r := &fakeReader{
		stagingStatus: store.StagingProcessed,
		serpErr:       store.ErrNotFound,
		// Would blow up the run if the serp-scoped checks fired anyway
		adIDsErr: errors.New("must not be called"),
	}
	v := NewVerifier(r, zap.NewNop())

	report, err := v.Verify(context.Background(), "job-1")
	require.NoError(t, err)

	assert.True(t, report.StagingProcessed)
	assert.False(t, report.SerpExists)
	assert.False(t, report.HasAdLinks)
	assert.False(t, report.AdsResolve)
	assert.False(t, report.HasRenderings)
	assert.False(t, report.IsFullyProcessed)
}

func TestVerifyAccessErrorShortCircuits(t *testing.T) {
	dbErr := errors.New("connection reset")
	r := healthyReader()
	r.adIDsErr = dbErr
	v := NewVerifier(r, zap.NewNop())

	report, err := v.Verify(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dbErr))
	assert.Nil(t, report)
}
