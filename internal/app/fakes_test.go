package app

import (
	"context"
	"errors"

	"swissknife-chat/internal/ai"
	"swissknife-chat/internal/model"
	"swissknife-chat/internal/vectorstore"
)

type fakeUserStore struct {
	users  map[string]*model.User // keyed by username
	nextID uint
	err    error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*model.User{}, nextID: 1}
}

func (f *fakeUserStore) Create(user *model.User) error {
	if f.err != nil {
		return f.err
	}
	user.ID = f.nextID
	f.nextID++
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserStore) GetByUsername(username string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[username], nil
}

func (f *fakeUserStore) GetByEmail(email string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) GetByID(id uint) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

type fakeConversationGetter struct {
	conversations map[uint]*model.Conversation
	err           error
}

func (f *fakeConversationGetter) GetByIDAndUserID(conversationID, userID uint) (*model.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.conversations[conversationID]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	return c, nil
}

type fakeMessageWindow struct {
	messages []model.Message
	err      error
	asc      [][2]int // recorded (conversationID, limit) pairs for ListByConversationID
}

func (f *fakeMessageWindow) ListByConversationID(conversationID uint, limit int) ([]model.Message, error) {
	f.asc = append(f.asc, [2]int{int(conversationID), limit})
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

func (f *fakeMessageWindow) CountByConversationID(conversationID uint) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.messages)), nil
}

func (f *fakeMessageWindow) ListRecentByConversationID(conversationID uint, limit int) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

type fakePublisher struct {
	published []model.Message
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeHistoryCache struct {
	histories map[uint][]model.Message
	dirty     map[uint]bool
	deleted   []uint
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{
		histories: map[uint][]model.Message{},
		dirty:     map[uint]bool{},
	}
}

func (f *fakeHistoryCache) GetHistory(_ context.Context, conversationID uint) ([]model.Message, bool, error) {
	msgs, ok := f.histories[conversationID]
	return msgs, ok, nil
}

func (f *fakeHistoryCache) SetHistory(_ context.Context, conversationID uint, messages []model.Message) error {
	f.histories[conversationID] = messages
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(_ context.Context, conversationID uint) error {
	delete(f.histories, conversationID)
	f.deleted = append(f.deleted, conversationID)
	return nil
}

func (f *fakeHistoryCache) MarkDirty(_ context.Context, conversationID uint) error {
	f.dirty[conversationID] = true
	return nil
}

func (f *fakeHistoryCache) IsDirty(_ context.Context, conversationID uint) (bool, error) {
	return f.dirty[conversationID], nil
}

// fakeLLM replays a scripted sequence of completions and records every
// request it sees.
type fakeLLM struct {
	completions []*ai.Completion
	err         error
	requests    []ai.CompletionRequest
	streamed    bool
}

func (f *fakeLLM) next() (*ai.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.completions) == 0 {
		return nil, errors.New("fakeLLM: no scripted completion left")
	}
	c := f.completions[0]
	f.completions = f.completions[1:]
	return c, nil
}

func (f *fakeLLM) Complete(_ context.Context, _ ai.ChatConfig, req ai.CompletionRequest) (*ai.Completion, error) {
	f.requests = append(f.requests, req)
	return f.next()
}

func (f *fakeLLM) StreamComplete(_ context.Context, _ ai.ChatConfig, req ai.CompletionRequest, onChunk func(string) error) (*ai.Completion, error) {
	f.requests = append(f.requests, req)
	f.streamed = true
	c, err := f.next()
	if err != nil {
		return nil, err
	}
	if c.Text != "" && len(c.ToolCalls) == 0 {
		if err := onChunk(c.Text); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type fakeRetriever struct {
	result  string
	userIDs []uint
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, userID uint, query string) string {
	f.userIDs = append(f.userIDs, userID)
	f.queries = append(f.queries, query)
	return f.result
}

// fakeEmbedder serves both single and batch embedding with canned vectors.
type fakeEmbedder struct {
	vector     []float32
	err        error
	inputs     []string
	batchSizes []int
	short      bool // return one vector fewer than asked
}

func (f *fakeEmbedder) Embed(_ context.Context, _ ai.EmbeddingConfig, input string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, _ ai.EmbeddingConfig, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, texts...)
	f.batchSizes = append(f.batchSizes, len(texts))
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = f.vector
	}
	return out, nil
}

type fakePassageStore struct {
	inserted  []model.Passage
	insertErr error
	matches   []vectorstore.Match
	searchErr error
	queries   []vectorstore.Query
}

func (f *fakePassageStore) InsertMany(passages []model.Passage) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, passages...)
	return nil
}

func (f *fakePassageStore) Search(query vectorstore.Query) ([]vectorstore.Match, error) {
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}
