package rag

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

type fakeDocStore struct {
	docs map[string]*store.Document
}

func (f *fakeDocStore) Get(ctx context.Context, id string) (*store.Document, error) { return f.docs[id], nil }
func (f *fakeDocStore) Create(ctx context.Context, d *store.Document) error         { f.docs[d.ID] = d; return nil }
func (f *fakeDocStore) SetStatus(ctx context.Context, id string, status store.DocStatus, errMsg string) error {
	d := f.docs[id]
	d.Status = status
	d.Error = errMsg
	return nil
}

type fakeKBStore struct{ kbs []*store.KnowledgeBase }

func (f *fakeKBStore) Get(ctx context.Context, id string) (*store.KnowledgeBase, error) { return nil, nil }
func (f *fakeKBStore) ActiveForAgent(ctx context.Context, agentID string) ([]*store.KnowledgeBase, error) {
	return f.kbs, nil
}
func (f *fakeKBStore) Create(ctx context.Context, kb *store.KnowledgeBase) error { return nil }

type fakeChunkStore struct {
	byKB map[string][]*store.DocumentChunk
}

func (f *fakeChunkStore) ReplaceAll(ctx context.Context, documentID string, chunks []*store.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	f.byKB[chunks[0].KBID] = chunks
	return nil
}
func (f *fakeChunkStore) ForKB(ctx context.Context, kbID string, limit int) ([]*store.DocumentChunk, error) {
	return f.byKB[kbID], nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vectors[text], nil
}
func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectors[t]
	}
	return out, nil
}

func TestIndexDocument_ChunkContiguity(t *testing.T) {
	docs := &fakeDocStore{docs: map[string]*store.Document{
		"d1": {ID: "d1", KBID: "kb1", Filename: "notes.txt", ContentType: "text/plain", RawB64: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("word ", 1200)))},
	}}
	chunks := &fakeChunkStore{byKB: map[string][]*store.DocumentChunk{}}
	svc := New(docs, &fakeKBStore{}, chunks, nil)

	err := svc.IndexDocument(context.Background(), "d1")
	require.NoError(t, err)

	assert.Equal(t, store.DocIndexed, docs.docs["d1"].Status)
	stored := chunks.byKB["kb1"]
	require.NotEmpty(t, stored)
	for i, c := range stored {
		assert.Equal(t, i, c.ChunkIndex, "chunk indices must be contiguous 0..n-1")
	}
}

func TestSearch_KeywordFallback_ScoresByDistinctHitRatio(t *testing.T) {
	chunks := &fakeChunkStore{byKB: map[string][]*store.DocumentChunk{
		"kb1": {
			{KBID: "kb1", ChunkIndex: 0, Content: "our retry logic handles backoff"},
			{KBID: "kb1", ChunkIndex: 1, Content: "the weather today is sunny"},
			{KBID: "kb1", ChunkIndex: 2, Content: "retry policy and escalation policy details"},
		},
	}}
	svc := New(&fakeDocStore{docs: map[string]*store.Document{}}, &fakeKBStore{}, chunks, nil)

	results, err := svc.Search(context.Background(), "kb1", "retry policy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].ChunkIndex)
	assert.InDelta(t, 1.0, results[0].Score, 0.0001)
	assert.Equal(t, 0, results[1].ChunkIndex)
	assert.InDelta(t, 0.5, results[1].Score, 0.0001)
}

func TestSearch_VectorSearch_RanksByCosineSimilarity(t *testing.T) {
	chunks := &fakeChunkStore{byKB: map[string][]*store.DocumentChunk{
		"kb1": {
			{KBID: "kb1", ChunkIndex: 0, Content: "close match", Embedding: []float32{1, 0, 0}},
			{KBID: "kb1", ChunkIndex: 1, Content: "far match", Embedding: []float32{0, 1, 0}},
		},
	}}
	embed := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
	svc := New(&fakeDocStore{docs: map[string]*store.Document{}}, &fakeKBStore{}, chunks, embed)

	results, err := svc.Search(context.Background(), "kb1", "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.InDelta(t, 1.0, results[0].Score, 0.0001)
	assert.InDelta(t, 0.0, results[1].Score, 0.0001)
}

func TestSearchForAgent_NoKnowledgeBases_ReturnsEmpty(t *testing.T) {
	svc := New(&fakeDocStore{docs: map[string]*store.Document{}}, &fakeKBStore{kbs: nil}, &fakeChunkStore{byKB: map[string][]*store.DocumentChunk{}}, nil)
	out, err := svc.SearchForAgent(context.Background(), "agent1", "q", 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}
