package chat_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/med-chat/backend/internal/analysis/failure"
	chatmodel "github.com/zhouzirui/med-chat/backend/internal/model/chat"
	"github.com/zhouzirui/med-chat/backend/internal/service/ai"
	chat "github.com/zhouzirui/med-chat/backend/internal/service/chat"
	"github.com/zhouzirui/med-chat/backend/internal/store"
)

func openSession(t *testing.T, st store.Store, completer ai.Completer) *chat.Session {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	sess, err := chat.Open(context.Background(), chat.Config{
		ID:        "s1",
		Profile:   testProfile(),
		Store:     st,
		Completer: completer,
	})
	require.NoError(t, err)
	return sess
}

func TestOpenSeedsGreeting(t *testing.T) {
	sess := openSession(t, nil, &fakeCompleter{})

	msgs := sess.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chatmodel.RoleAssistant, msgs[0].Role)
	assert.Equal(t, testProfile().Greeting, msgs[0].Content)
	assert.False(t, sess.Busy())
}

func TestSubmitAppendsUserMessageBeforeRequest(t *testing.T) {
	fc := &fakeCompleter{}
	sess := openSession(t, nil, fc)

	var during []chatmodel.Message
	var busyDuring bool
	fc.onCall = func(ai.Request) {
		during = sess.Messages()
		busyDuring = sess.Busy()
	}

	_, err := sess.Submit(context.Background(), "What is paracetamol?")
	require.NoError(t, err)

	require.Len(t, during, 2)
	assert.Equal(t, chatmodel.UserMessage("What is paracetamol?"), during[1])
	assert.True(t, busyDuring)
	assert.False(t, sess.Busy())
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	fc := &fakeCompleter{}
	st := store.NewMemoryStore()
	sess := openSession(t, st, fc)

	events := 0
	sess.Subscribe(func(chat.Event) { events++ })

	for _, text := range []string{"", "   ", "\n\t"} {
		outcome, err := sess.Submit(context.Background(), text)
		require.NoError(t, err)
		assert.True(t, outcome.Skipped)
	}

	assert.Len(t, sess.Messages(), 1)
	assert.Empty(t, fc.calls())
	assert.Zero(t, events)
	assert.False(t, st.Has(testProfile().StorageKey))
}

func TestSubmitSuccessAppendsReply(t *testing.T) {
	fc := &fakeCompleter{replies: []scriptedReply{{resp: okResponse("Take it with water.")}}}
	sess := openSession(t, nil, fc)

	outcome, err := sess.Submit(context.Background(), "How do I take paracetamol?")
	require.NoError(t, err)

	assert.True(t, outcome.OK())
	assert.Nil(t, outcome.Notice)
	msgs := sess.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, chatmodel.AssistantMessage("Take it with water."), msgs[2])

	calls := fc.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ai.DefaultModel, calls[0].Model)
	require.NotNil(t, calls[0].MaxTokens)
	assert.Equal(t, 1024, *calls[0].MaxTokens)
	require.NotNil(t, calls[0].Temperature)
	assert.InDelta(t, 0.7, *calls[0].Temperature, 1e-9)
}

func TestSubmitKeepsUntrimmedText(t *testing.T) {
	sess := openSession(t, nil, &fakeCompleter{})

	_, err := sess.Submit(context.Background(), "  fever  ")
	require.NoError(t, err)

	assert.Equal(t, "  fever  ", sess.Messages()[1].Content)
}

func TestSubmitQuotaRejection(t *testing.T) {
	body := []byte(`{"error":{"message":"This request requires more credits, or fewer max_tokens."}}`)
	fc := &fakeCompleter{replies: []scriptedReply{{resp: &ai.Response{Status: 429, Body: body}}}}
	sess := openSession(t, nil, fc)

	var notices []*chat.Notice
	sess.Subscribe(func(ev chat.Event) {
		if ev.Type == chat.EventNotice {
			notices = append(notices, ev.Notice)
		}
	})

	outcome, err := sess.Submit(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, failure.QuotaOrLimit, outcome.Failure)
	msgs := sess.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, chatmodel.AssistantMessage(chat.QuotaReply), msgs[2])

	require.Len(t, notices, 1)
	assert.Equal(t, failure.QuotaOrLimit, notices[0].Kind)
	assert.Equal(t, 429, notices[0].Status)
	assert.Equal(t, int64(7000), notices[0].DurationMs)
}

func TestSubmitGenericRejection(t *testing.T) {
	body := []byte(`{"error":{"message":"Invalid model"}}`)
	fc := &fakeCompleter{replies: []scriptedReply{{resp: &ai.Response{Status: 400, Body: body}}}}
	sess := openSession(t, nil, fc)

	outcome, err := sess.Submit(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, failure.Generic, outcome.Failure)
	require.NotNil(t, outcome.Notice)
	assert.Equal(t, "خطأ في الاتصال: 400", outcome.Notice.Title)
	assert.Equal(t, "Invalid model", outcome.Notice.Description)
	assert.Equal(t, chat.RequestFailedReply, sess.Messages()[2].Content)
}

func TestSubmitRejectionWithoutJSONBody(t *testing.T) {
	fc := &fakeCompleter{replies: []scriptedReply{{resp: &ai.Response{Status: 502, Body: []byte("Bad Gateway")}}}}
	sess := openSession(t, nil, fc)

	outcome, err := sess.Submit(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, failure.Generic, outcome.Failure)
	assert.Equal(t, "تفاصيل: Bad Gateway...", outcome.Notice.Description)
}

func TestSubmitTransportFailure(t *testing.T) {
	fc := &fakeCompleter{replies: []scriptedReply{{err: &ai.TransportError{Err: errors.New("dial tcp: connection refused")}}}}
	sess := openSession(t, nil, fc)

	outcome, err := sess.Submit(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, failure.Transport, outcome.Failure)
	assert.Equal(t, chat.ConnectionErrorReply, sess.Messages()[2].Content)
	assert.Equal(t, "dial tcp: connection refused", outcome.Notice.Description)
	assert.Equal(t, int64(5000), outcome.Notice.DurationMs)
	assert.False(t, sess.Busy())
}

func TestSubmitMalformedSuccess(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		reply string
		kind  failure.Kind
	}{
		{name: "no choices", body: `{"id":"x","choices":[]}`, reply: chat.ResponseFailedReply, kind: failure.Generic},
		{name: "in-band error", body: `{"error":{"message":"upstream overloaded"}}`, reply: chat.RequestFailedReply, kind: failure.Generic},
		{name: "in-band quota", body: `{"error":{"message":"needs more credits"}}`, reply: chat.QuotaReply, kind: failure.QuotaOrLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeCompleter{replies: []scriptedReply{{resp: &ai.Response{Status: 200, Body: []byte(tc.body)}}}}
			sess := openSession(t, nil, fc)

			outcome, err := sess.Submit(context.Background(), "question")
			require.NoError(t, err)

			assert.Equal(t, tc.kind, outcome.Failure)
			assert.Equal(t, tc.reply, sess.Messages()[2].Content)
			require.NotNil(t, outcome.Notice)
			assert.Equal(t, "حدث خطأ في الرد من الذكاء الاصطناعي.", outcome.Notice.Title)
		})
	}
}

func TestSubmitSendsWindowedHistory(t *testing.T) {
	st := store.NewMemoryStore()
	stored := chatmodel.Greeting("greeting")
	for i := 1; i <= 6; i++ {
		if i%2 == 1 {
			stored = append(stored, chatmodel.UserMessage("q"+strconv.Itoa(i)))
		} else {
			stored = append(stored, chatmodel.AssistantMessage("a"+strconv.Itoa(i)))
		}
	}
	require.NoError(t, st.Save(context.Background(), testProfile().StorageKey, stored))

	fc := &fakeCompleter{}
	sess := openSession(t, st, fc)
	require.Len(t, sess.Messages(), 7)

	_, err := sess.Submit(context.Background(), "latest")
	require.NoError(t, err)

	calls := fc.calls()
	require.Len(t, calls, 1)
	payload := calls[0].Messages
	require.Len(t, payload, 6)
	assert.Equal(t, schema.System, payload[0].Role)
	assert.Equal(t, testProfile().SystemPrompt, payload[0].Content)
	assert.Equal(t, "q3", payload[1].Content)
	assert.Equal(t, schema.User, payload[5].Role)
	assert.Equal(t, "latest", payload[5].Content)
}

func TestTranscriptRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	sess := openSession(t, st, &fakeCompleter{replies: []scriptedReply{{resp: okResponse("answer")}}})

	_, err := sess.Submit(context.Background(), "question")
	require.NoError(t, err)

	reopened := openSession(t, st, &fakeCompleter{})
	assert.Equal(t, sess.Messages(), reopened.Messages())
}

func TestOpenFallsBackOnCorruptTranscript(t *testing.T) {
	st := store.NewMemoryStore()
	st.Put(testProfile().StorageKey, []byte("{not json"))

	sess := openSession(t, st, &fakeCompleter{})

	msgs := sess.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, testProfile().Greeting, msgs[0].Content)
}

type failingStore struct {
	*store.MemoryStore
	loadErr error
	saveErr error
}

func (f *failingStore) Load(ctx context.Context, key string) ([]chatmodel.Message, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.MemoryStore.Load(ctx, key)
}

func (f *failingStore) Save(ctx context.Context, key string, messages []chatmodel.Message) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, key, messages)
}

func TestOpenPropagatesStorageErrors(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore(), loadErr: errors.New("connection reset")}

	_, err := chat.Open(context.Background(), chat.Config{
		Profile:   testProfile(),
		Store:     st,
		Completer: &fakeCompleter{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSubmitReportsPersistFailure(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore(), saveErr: errors.New("disk full")}
	sess := openSession(t, st, &fakeCompleter{replies: []scriptedReply{{resp: okResponse("answer")}}})

	outcome, err := sess.Submit(context.Background(), "question")
	require.Error(t, err)
	assert.True(t, outcome.OK())
	assert.Len(t, sess.Messages(), 3)
}

func TestResetRestoresGreetingAndClearsStorage(t *testing.T) {
	st := store.NewMemoryStore()
	sess := openSession(t, st, &fakeCompleter{})

	_, err := sess.Submit(context.Background(), "question")
	require.NoError(t, err)
	require.True(t, st.Has(testProfile().StorageKey))

	require.NoError(t, sess.Reset(context.Background()))

	msgs := sess.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, testProfile().Greeting, msgs[0].Content)
	assert.False(t, st.Has(testProfile().StorageKey))
}

func TestBusyTracksOutstandingRequest(t *testing.T) {
	fc := &fakeCompleter{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	sess := openSession(t, nil, fc)

	var busyEvents []bool
	var mu sync.Mutex
	sess.Subscribe(func(ev chat.Event) {
		if ev.Type == chat.EventBusy {
			mu.Lock()
			busyEvents = append(busyEvents, ev.Snapshot.Busy)
			mu.Unlock()
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sess.Submit(context.Background(), "question")
	}()

	<-fc.started
	assert.True(t, sess.Busy())

	close(fc.gate)
	<-done
	assert.False(t, sess.Busy())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, busyEvents)
}

func TestOverlappingSubmitsBothSettle(t *testing.T) {
	fc := &fakeCompleter{gate: make(chan struct{}), started: make(chan struct{}, 2)}
	sess := openSession(t, nil, fc)

	var wg sync.WaitGroup
	for _, q := range []string{"first", "second"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, _ = sess.Submit(context.Background(), q)
		}(q)
	}

	<-fc.started
	<-fc.started
	assert.True(t, sess.Busy())

	close(fc.gate)
	wg.Wait()

	assert.False(t, sess.Busy())
	assert.Len(t, sess.Messages(), 5)
}

func TestRecordLastResponse(t *testing.T) {
	p := testProfile()
	p.RecordLastResponse = true

	sess, err := chat.Open(context.Background(), chat.Config{
		Profile:   p,
		Store:     store.NewMemoryStore(),
		Completer: &fakeCompleter{replies: []scriptedReply{{resp: okResponse("answer")}}},
	})
	require.NoError(t, err)

	_, err = sess.Submit(context.Background(), "question")
	require.NoError(t, err)

	last := sess.Snapshot().LastResponse
	assert.Contains(t, last, `"content": "answer"`)

	require.NoError(t, sess.Reset(context.Background()))
	assert.Empty(t, sess.Snapshot().LastResponse)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	sess := openSession(t, nil, &fakeCompleter{})

	var types []chat.EventType
	cancel := sess.Subscribe(func(ev chat.Event) { types = append(types, ev.Type) })

	_, err := sess.Submit(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []chat.EventType{chat.EventTranscript, chat.EventBusy, chat.EventTranscript, chat.EventBusy}, types)

	cancel()
	cancel()
	_, err = sess.Submit(context.Background(), "again")
	require.NoError(t, err)
	assert.Len(t, types, 4)
}
