package biz

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kart-io/qabot/internal/model"
	"github.com/kart-io/qabot/internal/pkg/textutil"
	"github.com/kart-io/qabot/internal/qabot/sheets"
	"github.com/kart-io/qabot/internal/qabot/store"
	"github.com/kart-io/qabot/pkg/llm"
)

// fakeSource serves a fixed row set. gate, when set, blocks FetchRows until
// the channel is closed, to exercise the sync critical section; started is
// closed when the first blocked fetch has begun.
type fakeSource struct {
	rows        []sheets.Row
	err         error
	gate        chan struct{}
	started     chan struct{}
	startedOnce sync.Once
}

func (f *fakeSource) FetchRows(ctx context.Context) ([]sheets.Row, error) {
	if f.started != nil {
		f.startedOnce.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func qaRow(number int, question, answer string) sheets.Row {
	return sheets.Row{
		Number: number,
		Fields: map[string]string{"question": question, "answer": answer},
	}
}

const fakeDim = 4

// fakeEmbedder returns the pinned vector for a text when one is set and a
// deterministic length-derived vector otherwise.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()

	if fail {
		return nil, errors.New("embedding backend unavailable")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{float32(len(text)%7) + 1, float32(len(text)%5) + 1, 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

// fakeVectorStore keeps records in memory and answers searches with exact
// cosine scores, mirroring the store's native [-1,1] score range.
type fakeVectorStore struct {
	mu      sync.Mutex
	records map[string]*store.Record

	upsertCalls int
	deleteCalls int
	upserted    int
	deleted     []string
	failUpsert  bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{records: make(map[string]*store.Record)}
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, dimension int) error { return nil }

func (f *fakeVectorStore) Upsert(ctx context.Context, records []*store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errors.New("vector store unavailable")
	}
	f.upsertCalls++
	f.upserted += len(records)
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	for _, id := range ids {
		delete(f.records, id)
		f.deleted = append(f.deleted, id)
	}
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]*store.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matches := make([]*store.Match, 0, len(f.records))
	for _, r := range f.records {
		matches = append(matches, &store.Match{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			RowNumber:  r.RowNumber,
			Question:   r.Question,
			Answer:     r.Answer,
			Category:   r.Category,
			Link:       r.Link,
			Content:    r.Content,
			Score:      float32(textutil.CosineSimilarity(embedding, r.Embedding)),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *fakeVectorStore) Stats(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

func (f *fakeVectorStore) Close(ctx context.Context) error { return nil }

func (f *fakeVectorStore) counts() (upsertCalls, deleteCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCalls, f.deleteCalls
}

// fakeChat records the last prompt and returns a canned answer. failures,
// when positive, makes that many calls fail before the provider recovers.
type fakeChat struct {
	mu           sync.Mutex
	response     string
	err          error
	failures     int
	calls        int
	chatCalls    int
	lastPrompt   string
	lastMessages []llm.Message
	systemPrompt string
}

func (f *fakeChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.chatCalls++
	f.lastMessages = messages
	err := f.nextErr()
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	return f.response, nil
}

func (f *fakeChat) Generate(ctx context.Context, prompt string, systemPrompt string) (*llm.GenerateResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastPrompt = prompt
	f.systemPrompt = systemPrompt
	err := f.nextErr()
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &llm.GenerateResponse{Content: f.response}, nil
}

// nextErr must be called with f.mu held.
func (f *fakeChat) nextErr() error {
	if f.failures > 0 {
		f.failures--
		return errors.New("provider timeout")
	}
	return f.err
}

func (f *fakeChat) Name() string { return "fake" }

// fakeQueryCache is an in-memory QueryCacher so cache discipline is testable
// without a Redis instance.
type fakeQueryCache struct {
	mu      sync.Mutex
	entries map[string]*model.QueryResult
	sets    int
}

func newFakeQueryCache() *fakeQueryCache {
	return &fakeQueryCache{entries: make(map[string]*model.QueryResult)}
}

func (f *fakeQueryCache) Get(ctx context.Context, query string) (*model.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[query], nil
}

func (f *fakeQueryCache) Set(ctx context.Context, query string, result *model.QueryResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[query] = result
	f.sets++
	return nil
}

func (f *fakeQueryCache) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]*model.QueryResult)
	return nil
}

func (f *fakeQueryCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]interface{}{"enabled": true, "key_count": len(f.entries)}, nil
}

var _ store.VectorStore = (*fakeVectorStore)(nil)
var _ llm.EmbeddingProvider = (*fakeEmbedder)(nil)
var _ llm.ChatProvider = (*fakeChat)(nil)
var _ sheets.Source = (*fakeSource)(nil)
var _ QueryCacher = (*fakeQueryCache)(nil)
