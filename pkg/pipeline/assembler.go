package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipworks/highlighter/pkg/config"
	"github.com/clipworks/highlighter/pkg/detect"
	"github.com/clipworks/highlighter/pkg/llm"
	"github.com/clipworks/highlighter/pkg/media"
	"github.com/clipworks/highlighter/pkg/refine"
	"github.com/clipworks/highlighter/pkg/store"
)

// GrouperAPI is the grouping LLM contract the assembler depends on.
type GrouperAPI interface {
	GroupCaptions(ctx context.Context, captions []string) ([]llm.Group, error)
}

// RefinerAPI is the agentic edge refiner contract.
type RefinerAPI interface {
	Refine(ctx context.Context, orig refine.Window, snapped refine.Snapped, scenes, topics []float64, transcript, frameDir string) refine.Snapped
}

// assemblerWaitDelay is the pause while score rows are still being produced.
const assemblerWaitDelay = 5 * time.Second

// Assembler thresholds score rows into highlight groups, titles them, and
// refines each group's edges before persisting the stream's highlight
// list.
type Assembler struct {
	StreamID string
	Cfg      *config.Config
	Scores   *store.ScoreStore
	Streams  *store.StreamStore
	Chunks   *store.ChunkStore
	Grouper  GrouperAPI
	Refiner  RefinerAPI
	Latches  *Latches
	BaseDir  string // BASE_DIR/<stream_id>

	// SceneFn and TopicFn default to the detect package; tests swap them.
	SceneFn func(frameDir string, fps float64, opts detect.SceneOptions) ([]float64, error)
	TopicFn func(words []store.WordItem, opts detect.TilingOptions) []float64

	scenes       []float64
	scenesReady  bool
	topics       []float64
	topicsAt     int // flattened word count at the last topic compute
	topicsSealed bool
}

// Run consumes score rows block by block until the scorer is done and no
// unread rows remain.
func (a *Assembler) Run(ctx context.Context) error {
	if a.SceneFn == nil {
		a.SceneFn = detect.SceneBoundaries
	}
	if a.TopicFn == nil {
		a.TopicFn = detect.TopicBoundaries
	}
	slog.Info("Started the highlight assembler", "stream_id", a.StreamID)

	shouldBreak := false
	blockStart := 0.0
	for {
		if shouldBreak {
			slog.Info("Highlight assembler finished", "stream_id", a.StreamID)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		blockEnd := blockStart + float64(a.Cfg.HighlightChunk)
		rows, err := a.Scores.ListBetween(ctx, a.StreamID, blockStart, blockEnd)
		if err != nil {
			return err
		}

		fullBlock := int(float64(a.Cfg.HighlightChunk) / a.Cfg.CandidateSlice)
		if len(rows) < fullBlock {
			if !a.Latches.ClipScorer.IsSet() {
				slog.Info("Waiting for score rows to become available", "stream_id", a.StreamID)
				if err := sleepCtx(ctx, assemblerWaitDelay); err != nil {
					return err
				}
				continue
			}
			if len(rows) == 0 {
				shouldBreak = true
				continue
			}
			more, err := a.Scores.HasMoreAfter(ctx, a.StreamID, rows[len(rows)-1].EndTime)
			if err != nil {
				return err
			}
			if !more {
				shouldBreak = true
			}
		}

		if err := a.assembleBlock(ctx, rows); err != nil {
			return err
		}
		blockStart = blockEnd
	}
}

// assembleBlock converts one block of score rows into refined highlights
// and persists the updated list.
func (a *Assembler) assembleBlock(ctx context.Context, rows []store.ScoreRow) error {
	mask := make([]int, len(rows))
	for i, row := range rows {
		if a.isHighlight(row) {
			mask[i] = 1
		}
	}

	groups := consolidateGroups(getOneGroups(mask))
	if len(groups) == 0 {
		return nil
	}

	var highlights []store.Highlight
	for _, g := range groups {
		sub, err := a.titleGroups(ctx, rows, g)
		if err != nil {
			return err
		}
		highlights = append(highlights, sub...)
	}
	if len(highlights) == 0 {
		return nil
	}

	slog.Info("Generated highlights", "stream_id", a.StreamID, "count", len(highlights))
	return a.persist(ctx, highlights)
}

// isHighlight applies the threshold mask rule to one score row.
func (a *Assembler) isHighlight(row store.ScoreRow) bool {
	if row.HighlightScore >= a.Cfg.HighlightThreshold {
		return true
	}
	return row.SaliencyScore >= a.Cfg.SaliencyThreshold && row.HighlightScore >= a.Cfg.RelaxedHighlightScore
}

// titleGroups asks the grouping LLM to split one run of adjacent rows
// into titled subgroups, then refines and emits each one. A grouper
// failure degrades to one group spanning the run.
func (a *Assembler) titleGroups(ctx context.Context, rows []store.ScoreRow, g span) ([]store.Highlight, error) {
	captions := make([]string, 0, g.r-g.l+1)
	for i := g.l; i <= g.r; i++ {
		captions = append(captions, rows[i].Caption)
	}

	titled, err := a.Grouper.GroupCaptions(ctx, captions)
	if err != nil {
		slog.Warn("Grouper failed, emitting one group for the block", "stream_id", a.StreamID, "error", err)
		titled = llm.FallbackGroup(captions)
	}

	var highlights []store.Highlight
	for _, tg := range titled {
		lo, hi := tg.Indexes[0], tg.Indexes[0]
		for _, idx := range tg.Indexes[1:] {
			if idx < lo {
				lo = idx
			}
			if idx > hi {
				hi = idx
			}
		}

		h, err := a.emit(ctx, rows[g.l+lo:g.l+hi+1], tg.Title)
		if err != nil {
			return nil, err
		}
		if h != nil {
			highlights = append(highlights, *h)
		}
	}
	return highlights, nil
}

// emit refines one titled subgroup into a highlight record.
func (a *Assembler) emit(ctx context.Context, rows []store.ScoreRow, title string) (*store.Highlight, error) {
	origStart := rows[0].StartTime
	origEnd := rows[len(rows)-1].EndTime

	captions := make([]string, 0, len(rows))
	for _, row := range rows {
		captions = append(captions, row.Caption)
	}
	caption := strings.Join(captions, " ")

	if !a.Cfg.AgenticRefinementEnabled {
		return &store.Highlight{
			StartTime: origStart,
			EndTime:   origEnd,
			Title:     title,
			Caption:   caption,
			Thumbnail: a.thumbnail(origStart),
		}, nil
	}

	if err := a.ensureBoundaries(ctx); err != nil {
		return nil, err
	}

	orig := refine.Window{Start: origStart, End: origEnd}
	budgets := refine.Budgets{
		SceneStart: a.Cfg.MaxShiftSceneStart,
		SceneEnd:   a.Cfg.MaxShiftSceneEnd,
		Topic:      a.Cfg.MaxShiftTopic,
	}
	// generous bounds here; the refiner's executor enforces the final ones
	maxLen := math.Max(a.Cfg.HighlightMaxLen, orig.Duration())
	snapped, err := refine.Snap(orig, a.scenes, a.topics, budgets, a.Cfg.HighlightMinLen, maxLen, refine.SceneFirst)
	if err != nil {
		return nil, err
	}
	snapped.Start = clampEdge(snapped.Start, origStart, a.Cfg.MaxEdgeShiftSeconds)
	snapped.End = clampEdge(snapped.End, origEnd, a.Cfg.MaxEdgeShiftSeconds)

	transcript, err := a.windowTranscript(ctx, snapped.Start, snapped.End)
	if err != nil {
		return nil, err
	}

	final := a.Refiner.Refine(ctx, orig, snapped, a.scenes, a.topics, transcript, filepath.Join(a.BaseDir, "frames"))
	return &store.Highlight{
		StartTime:  final.Start,
		EndTime:    final.End,
		Title:      title,
		Caption:    caption,
		Thumbnail:  a.thumbnail(final.Start),
		SnapReason: fmt.Sprintf("start=%s,end=%s", final.StartSource, final.EndSource),
	}, nil
}

func (a *Assembler) thumbnail(startTime float64) string {
	return media.FrameFilename(int64(math.Floor(startTime * a.Cfg.VideoFrameSampleRate)))
}

// ensureBoundaries fills the scene cache once and recomputes the topic
// cache when enough new words have arrived or the scorer has finished.
func (a *Assembler) ensureBoundaries(ctx context.Context) error {
	if !a.scenesReady {
		scenes, err := a.SceneFn(filepath.Join(a.BaseDir, "frames"), a.Cfg.VideoFrameSampleRate, detect.SceneOptions{
			Threshold:   a.Cfg.SceneCutThreshold,
			MinSceneLen: a.Cfg.MinSceneLenSeconds,
		})
		if err != nil {
			return err
		}
		a.scenes = scenes
		a.scenesReady = true
	}

	if a.topicsSealed {
		return nil
	}
	words, err := a.flattenWords(ctx)
	if err != nil {
		return err
	}
	scorerDone := a.Latches.ClipScorer.IsSet()
	firstUse := a.topicsAt == 0 && a.topics == nil
	grown := len(words)-a.topicsAt >= a.Cfg.TopicRecomputeGrowth
	if firstUse || grown || scorerDone {
		a.topics = a.TopicFn(words, detect.TilingOptions{
			BlockSize:      a.Cfg.TextTilingBlock,
			Step:           a.Cfg.TextTilingStep,
			SmoothingWidth: a.Cfg.TextTilingSmooth,
			CutoffStd:      a.Cfg.TextTilingCutoffStd,
		})
		a.topicsAt = len(words)
		if scorerDone {
			a.topicsSealed = true
		}
	}
	return nil
}

// flattenWords joins every finalized transcript into one absolute-time
// word stream.
func (a *Assembler) flattenWords(ctx context.Context) ([]store.WordItem, error) {
	chunks, err := a.Chunks.ListRange(ctx, a.StreamID, 0, int64(math.MaxInt32))
	if err != nil {
		return nil, err
	}
	var words []store.WordItem
	for i := range chunks {
		items, err := chunks[i].Words()
		if err != nil {
			slog.Warn("Skipping malformed transcript", "stream_id", a.StreamID, "chunk_index", chunks[i].ChunkIndex, "error", err)
			continue
		}
		for _, item := range items {
			item.StartTime += chunks[i].StartTimestamp
			item.EndTime += chunks[i].StartTimestamp
			words = append(words, item)
		}
	}
	return words, nil
}

// windowTranscript joins the spoken words inside [start, end].
func (a *Assembler) windowTranscript(ctx context.Context, start, end float64) (string, error) {
	clip := &CandidateClip{
		BaseDir:      a.BaseDir,
		StartTime:    start,
		EndTime:      end,
		ChunkSeconds: a.Cfg.AudioChunkSeconds,
		FrameRate:    a.Cfg.VideoFrameSampleRate,
	}
	indexes := clip.AudioChunkIndexes()
	chunks, err := a.Chunks.ListRange(ctx, a.StreamID, indexes[0], indexes[len(indexes)-1])
	if err != nil {
		return "", err
	}
	return clip.TranscriptText(chunks)
}

// persist loads the stream's existing highlight list, appends this
// cycle's highlights, and replaces the whole list atomically.
func (a *Assembler) persist(ctx context.Context, highlights []store.Highlight) error {
	stream, err := a.Streams.Get(ctx, a.StreamID)
	if err != nil {
		return err
	}
	existing, err := store.DecodeHighlights(stream.Highlights)
	if err != nil {
		slog.Warn("Discarding malformed highlight list", "stream_id", a.StreamID, "error", err)
		existing = nil
	}
	return a.Streams.ReplaceHighlights(ctx, a.StreamID, append(existing, highlights...))
}

// span is a closed index range of score rows.
type span struct {
	l, r int
}

// getOneGroups converts a 0/1 mask into runs of ones.
func getOneGroups(mask []int) []span {
	var groups []span
	start := -1
	for i, v := range mask {
		if v == 1 && start == -1 {
			start = i
		} else if v == 0 && start != -1 {
			groups = append(groups, span{l: start, r: i - 1})
			start = -1
		}
	}
	if start != -1 {
		groups = append(groups, span{l: start, r: len(mask) - 1})
	}
	return groups
}

// consolidateGroups merges runs separated by exactly one zero slice.
func consolidateGroups(groups []span) []span {
	if len(groups) == 0 {
		return nil
	}
	consolidated := []span{groups[0]}
	for _, g := range groups[1:] {
		prev := &consolidated[len(consolidated)-1]
		if g.l-prev.r == 2 {
			prev.r = g.r
		} else {
			consolidated = append(consolidated, g)
		}
	}
	return consolidated
}

func clampEdge(v, anchor, shift float64) float64 {
	if v < anchor-shift {
		return anchor - shift
	}
	if v > anchor+shift {
		return anchor + shift
	}
	return v
}
