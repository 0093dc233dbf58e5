package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipworks/highlighter/pkg/config"
	"github.com/clipworks/highlighter/pkg/llm"
	"github.com/clipworks/highlighter/pkg/store"
)

func TestGetOneGroups(t *testing.T) {
	tests := []struct {
		name string
		mask []int
		want []span
	}{
		{"empty", nil, nil},
		{"all zero", []int{0, 0, 0}, nil},
		{"single run", []int{0, 1, 1, 0}, []span{{1, 2}}},
		{"run at the end", []int{0, 0, 1, 1}, []span{{2, 3}}},
		{"several runs", []int{1, 1, 0, 1, 0, 0, 1}, []span{{0, 1}, {3, 3}, {6, 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getOneGroups(tt.mask))
		})
	}
}

func TestConsolidateGroupsMergesSingleSliceGaps(t *testing.T) {
	// 1,1,0,1,0,0,1 — the first gap is one slice wide, the second two
	groups := getOneGroups([]int{1, 1, 0, 1, 0, 0, 1})
	assert.Equal(t, []span{{0, 3}, {6, 6}}, consolidateGroups(groups))

	assert.Nil(t, consolidateGroups(nil))
	assert.Equal(t, []span{{0, 0}}, consolidateGroups([]span{{0, 0}}))
}

func TestIsHighlightMaskRule(t *testing.T) {
	a := &Assembler{Cfg: config.Default()}

	assert.True(t, a.isHighlight(store.ScoreRow{HighlightScore: 0.7}))
	assert.False(t, a.isHighlight(store.ScoreRow{HighlightScore: 0.69}))

	// the relaxed branch needs both a salient window and a near-miss score
	assert.True(t, a.isHighlight(store.ScoreRow{SaliencyScore: 0.7, HighlightScore: 0.6}))
	assert.False(t, a.isHighlight(store.ScoreRow{SaliencyScore: 0.69, HighlightScore: 0.6}))
	assert.False(t, a.isHighlight(store.ScoreRow{SaliencyScore: 0.9, HighlightScore: 0.59}))
}

func TestClampEdge(t *testing.T) {
	assert.Equal(t, 9.5, clampEdge(8.0, 10.0, 0.5))
	assert.Equal(t, 10.5, clampEdge(12.0, 10.0, 0.5))
	assert.Equal(t, 10.2, clampEdge(10.2, 10.0, 0.5))
}

func TestThumbnailUsesStartFrame(t *testing.T) {
	a := &Assembler{Cfg: config.Default()} // 2 fps
	assert.Equal(t, "frame_000000021.jpg", a.thumbnail(10.7))
	assert.Equal(t, "frame_000000000.jpg", a.thumbnail(0))
}

type fakeGrouper struct {
	groups []llm.Group
	err    error
	got    []string
}

func (f *fakeGrouper) GroupCaptions(_ context.Context, captions []string) ([]llm.Group, error) {
	f.got = captions
	return f.groups, f.err
}

func plainAssembler(grouper GrouperAPI) *Assembler {
	cfg := config.Default()
	cfg.AgenticRefinementEnabled = false
	return &Assembler{StreamID: "s1", Cfg: cfg, Grouper: grouper}
}

func scoreRows(n int, base float64) []store.ScoreRow {
	rows := make([]store.ScoreRow, n)
	for i := range rows {
		rows[i] = store.ScoreRow{
			StartTime: base + float64(i)*5,
			EndTime:   base + float64(i+1)*5,
			Caption:   "caption",
		}
	}
	return rows
}

func TestTitleGroupsSplitsRunIntoSubgroups(t *testing.T) {
	grouper := &fakeGrouper{groups: []llm.Group{
		{Title: "first", Indexes: []int{0, 1}},
		{Title: "second", Indexes: []int{2}},
	}}
	a := plainAssembler(grouper)
	rows := scoreRows(4, 100)

	highlights, err := a.titleGroups(context.Background(), rows, span{l: 1, r: 3})
	require.NoError(t, err)
	require.Len(t, highlights, 2)

	assert.Equal(t, []string{"caption", "caption", "caption"}, grouper.got)
	assert.Equal(t, "first", highlights[0].Title)
	assert.Equal(t, 105.0, highlights[0].StartTime)
	assert.Equal(t, 115.0, highlights[0].EndTime)
	assert.Equal(t, "second", highlights[1].Title)
	assert.Equal(t, 115.0, highlights[1].StartTime)
	assert.Equal(t, 120.0, highlights[1].EndTime)
}

func TestTitleGroupsFallsBackOnGrouperFailure(t *testing.T) {
	a := plainAssembler(&fakeGrouper{err: errors.New("throttled")})
	rows := scoreRows(3, 0)

	highlights, err := a.titleGroups(context.Background(), rows, span{l: 0, r: 2})
	require.NoError(t, err)
	require.Len(t, highlights, 1)
	assert.Equal(t, 0.0, highlights[0].StartTime)
	assert.Equal(t, 15.0, highlights[0].EndTime)
	assert.NotEmpty(t, highlights[0].Title)
}

func TestEmitWithoutRefinementKeepsOriginalEdges(t *testing.T) {
	a := plainAssembler(nil)
	rows := scoreRows(2, 50)

	h, err := a.emit(context.Background(), rows, "title")
	require.NoError(t, err)
	assert.Equal(t, 50.0, h.StartTime)
	assert.Equal(t, 60.0, h.EndTime)
	assert.Equal(t, "caption caption", h.Caption)
	assert.Equal(t, "frame_000000100.jpg", h.Thumbnail)
	assert.Empty(t, h.SnapReason)
}
