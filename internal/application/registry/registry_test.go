package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const (
	gno    = "0xc000000000000000000000000000000000000000"
	yesGNO = "0xc100000000000000000000000000000000000000"
	sdai   = "0xd000000000000000000000000000000000000000"
)

type stubProvider struct {
	meta domain.MarketMetadata
	err  error
}

func (s stubProvider) FetchMetadata(context.Context) (domain.MarketMetadata, error) {
	return s.meta, s.err
}

func meta(company string) domain.MarketMetadata {
	return domain.MarketMetadata{
		MarketID: "0xproposal",
		Company: domain.TokenGroup{
			Base: domain.TokenInfo{Address: company, Symbol: "GNO"},
			Yes:  domain.TokenInfo{Address: yesGNO, Symbol: "YES_GNO"},
		},
		Currency: domain.TokenGroup{
			Base: domain.TokenInfo{Address: sdai, Symbol: "sDAI"},
		},
	}
}

func TestNew_EmptyRegistry(t *testing.T) {
	r := New(nil)
	_, ok := r.Classify(gno)
	assert.False(t, ok)
	assert.Zero(t, r.Snapshot().Len())
}

func TestClassify_CaseInsensitive(t *testing.T) {
	m := meta(gno)
	r := New(&m)

	role, ok := r.Classify("0xC100000000000000000000000000000000000000")
	require.True(t, ok)
	assert.Equal(t, domain.CategoryCompany, role.Category)
	assert.Equal(t, domain.SideYes, role.Side)
}

func TestSnapshot_StableAcrossRebuild(t *testing.T) {
	m := meta(gno)
	r := New(&m)
	before := r.Snapshot()

	r.Rebuild(meta("0xc00000000000000000000000000000000000000f"))

	_, ok := before.Classify(gno)
	assert.True(t, ok, "old snapshot must keep its table")
	_, ok = r.Classify(gno)
	assert.False(t, ok)
	_, ok = r.Classify("0xc00000000000000000000000000000000000000f")
	assert.True(t, ok)
}

func TestLoad(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Load(t.Context(), stubProvider{meta: meta(gno)}))

	role, ok := r.Classify(gno)
	require.True(t, ok)
	assert.Equal(t, domain.SideNone, role.Side)
	assert.Equal(t, "0xproposal", r.Snapshot().Metadata().MarketID)
}

func TestLoad_ErrorKeepsPreviousTable(t *testing.T) {
	m := meta(gno)
	r := New(&m)

	err := r.Load(t.Context(), stubProvider{err: errors.New("rpc down")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")

	_, ok := r.Classify(gno)
	assert.True(t, ok)
}
