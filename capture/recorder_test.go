package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodlog/capture"
	"prodlog/errors"
	"prodlog/oplog"
	"prodlog/product"
)

// stubStore 以函数字段模拟宿主，未设置的操作返回零值
type stubStore struct {
	create func(ctx context.Context, kind product.Kind, values product.Values, nested product.CreateFunc) (product.Row, error)
	write  func(ctx context.Context, kind product.Kind, ids []int64, values product.Values) (bool, error)
	unlink func(ctx context.Context, kind product.Kind, ids []int64, nested product.UnlinkFunc) (bool, error)
	search func(ctx context.Context, kind product.Kind, filter product.Filter) ([]int64, error)
	rows   map[int64]product.Row
	loads  int
}

func (s *stubStore) Create(ctx context.Context, kind product.Kind, values product.Values, nested product.CreateFunc) (product.Row, error) {
	return s.create(ctx, kind, values, nested)
}

func (s *stubStore) Write(ctx context.Context, kind product.Kind, ids []int64, values product.Values) (bool, error) {
	if s.write == nil {
		return true, nil
	}
	return s.write(ctx, kind, ids, values)
}

func (s *stubStore) Unlink(ctx context.Context, kind product.Kind, ids []int64, nested product.UnlinkFunc) (bool, error) {
	return s.unlink(ctx, kind, ids, nested)
}

func (s *stubStore) Search(ctx context.Context, kind product.Kind, filter product.Filter) ([]int64, error) {
	if s.search == nil {
		return nil, nil
	}
	return s.search(ctx, kind, filter)
}

func (s *stubStore) Load(_ context.Context, kind product.Kind, ids []int64) ([]product.Row, error) {
	s.loads++
	var out []product.Row
	for _, id := range ids {
		if r, ok := s.rows[id]; ok && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func fixedClock() *oplog.Clock {
	return oplog.NewClockFunc(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) })
}

func TestKeyResolutionFailure(t *testing.T) {
	ctx := context.Background()
	host := &stubStore{
		create: func(context.Context, product.Kind, product.Values, product.CreateFunc) (product.Row, error) {
			return product.Row{Kind: product.Variant, ID: 8}, nil
		},
		rows: map[int64]product.Row{8: {Kind: product.Variant, ID: 8}},
	}
	sink := oplog.NewMemorySink()
	store := capture.New(host, capture.WithObserver(capture.NewRecorder(host, sink, capture.WithClock(fixedClock()))))

	_, err := store.Create(ctx, product.Variant, product.Values{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeKeyResolution))

	_, err = store.Write(ctx, product.Variant, []int64{8}, product.Values{"barcode": "1"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeKeyResolution))

	_, err = store.Unlink(ctx, product.Variant, []int64{8}, nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeKeyResolution))
	assert.Zero(t, sink.Len())
}

func TestMutationErrorPassesThroughUnchanged(t *testing.T) {
	hostErr := errors.New(errors.ErrCodeConflict, "locked")
	host := &stubStore{
		create: func(context.Context, product.Kind, product.Values, product.CreateFunc) (product.Row, error) {
			return product.Row{}, hostErr
		},
		unlink: func(context.Context, product.Kind, []int64, product.UnlinkFunc) (bool, error) {
			return false, hostErr
		},
		rows: map[int64]product.Row{3: {Kind: product.Template, ID: 3}},
	}
	sink := oplog.NewMemorySink()
	store := capture.New(host, capture.WithObserver(capture.NewRecorder(host, sink)))

	_, err := store.Create(context.Background(), product.Template, product.Values{}, nil)
	assert.Same(t, hostErr, err)
	_, err = store.Unlink(context.Background(), product.Template, []int64{3}, nil)
	assert.Same(t, hostErr, err)
	assert.Zero(t, sink.Len(), "第一阶段捕获的记录在删除失败时被丢弃")
}

// 宿主在仍有其他变体时也级联删除模板：未被标记的模板删除照常记录
func TestUnmarkedCascadeIsStillLogged(t *testing.T) {
	host := &stubStore{
		rows: map[int64]product.Row{
			1: {Kind: product.Template, ID: 1},
			2: {Kind: product.Variant, ID: 2, TemplateID: 1},
		},
		search: func(context.Context, product.Kind, product.Filter) ([]int64, error) {
			return []int64{5}, nil
		},
	}
	host.unlink = func(ctx context.Context, kind product.Kind, ids []int64, nested product.UnlinkFunc) (bool, error) {
		if kind == product.Variant {
			return nested(ctx, product.Template, []int64{1})
		}
		return true, nil
	}
	sink := oplog.NewMemorySink()
	store := capture.New(host, capture.WithObserver(capture.NewRecorder(host, sink, capture.WithClock(fixedClock()))))

	_, err := store.Unlink(context.Background(), product.Variant, []int64{2}, nil)
	require.NoError(t, err)

	recs := sink.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, oplog.ModelTemplate, recs[0].ModelName, "嵌套删除先提交")
	assert.Equal(t, oplog.Key{ModelName: oplog.ModelVariant, RecordID: 2, TemplateID: 1}, recs[1].Key)
}

func TestCascadeScopeIsPerTopLevelCall(t *testing.T) {
	rows := map[int64]product.Row{
		1: {Kind: product.Template, ID: 1},
		2: {Kind: product.Variant, ID: 2, TemplateID: 1},
	}
	host := &stubStore{rows: rows}
	host.unlink = func(ctx context.Context, kind product.Kind, ids []int64, nested product.UnlinkFunc) (bool, error) {
		if kind == product.Variant {
			delete(rows, 2)
			return nested(ctx, product.Template, []int64{1})
		}
		return true, nil
	}
	sink := oplog.NewMemorySink()
	store := capture.New(host, capture.WithObserver(capture.NewRecorder(host, sink)))

	_, err := store.Unlink(context.Background(), product.Variant, []int64{2}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sink.Len())

	// 新的顶层调用看不到上一次的标记
	_, err = store.Unlink(context.Background(), product.Template, []int64{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sink.Len())
}

func TestObserversRunInRegistrationOrder(t *testing.T) {
	var calls []string
	host := &stubStore{
		create: func(context.Context, product.Kind, product.Values, product.CreateFunc) (product.Row, error) {
			return product.Row{Kind: product.Template, ID: 1}, nil
		},
	}
	obs := func(name string) capture.Observer {
		return observerFunc(func() { calls = append(calls, name) })
	}
	store := capture.New(host, capture.WithObserver(obs("a")), capture.WithObserver(nil), capture.WithObserver(obs("b")))
	_, err := store.Create(context.Background(), product.Template, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, calls)
}

type observerFunc func()

func (f observerFunc) OnCreate(context.Context, product.Kind, product.Row) error {
	f()
	return nil
}

func (f observerFunc) OnWrite(context.Context, product.Kind, []product.Row, product.Values) error {
	f()
	return nil
}

func (f observerFunc) PrepareUnlink(context.Context, product.Kind, []product.Row, *capture.CascadeScope) (capture.UnlinkCommit, error) {
	f()
	return nil, nil
}

func TestResolver(t *testing.T) {
	host := &stubStore{rows: map[int64]product.Row{7: {Kind: product.Variant, ID: 7, TemplateID: 3}}}
	r := capture.NewResolver(host, 16)

	key, err := r.Resolve(product.Template, product.Row{ID: 3})
	require.NoError(t, err)
	assert.Equal(t, oplog.Key{ModelName: oplog.ModelTemplate, RecordID: 3, TemplateID: 3}, key)

	key, err = r.Resolve(product.Variant, product.Row{ID: 9, TemplateID: 4})
	require.NoError(t, err)
	assert.Equal(t, oplog.Key{ModelName: oplog.ModelVariant, RecordID: 9, TemplateID: 4}, key)
	assert.Zero(t, host.loads, "变体键直接取自已加载行")

	_, err = r.Resolve(product.Variant, product.Row{ID: 9})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeKeyResolution))
	_, err = r.Resolve(product.Kind(0), product.Row{ID: 1})
	assert.Error(t, err)

	ctx := context.Background()
	tid, err := r.TemplateOf(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tid)
	_, err = r.TemplateOf(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, host.loads, "第二次命中缓存")

	tid, err = r.TemplateOf(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(4), tid, "Resolve 已写入缓存")

	_, err = r.TemplateOf(ctx, 404)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeKeyResolution))
}

func TestParsePayloadPolicy(t *testing.T) {
	p, err := capture.ParsePayloadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, capture.PolicyValues, p)
	p, err = capture.ParsePayloadPolicy(" Names ")
	require.NoError(t, err)
	assert.Equal(t, capture.PolicyNames, p)
	_, err = capture.ParsePayloadPolicy("pickle")
	assert.Error(t, err)
}

func TestBinaryFields(t *testing.T) {
	host := &stubStore{rows: map[int64]product.Row{1: {Kind: product.Template, ID: 1}}}
	sink := oplog.NewMemorySink()
	rec := capture.NewRecorder(host, sink, capture.WithBinaryFields("manual_pdf"))
	store := capture.New(host, capture.WithObserver(rec))

	_, err := store.Write(context.Background(), product.Template, []int64{1}, product.Values{
		"manual_pdf": "base64...",
		"image":      []byte{1},
		"name":       "Chair",
	})
	require.NoError(t, err)
	require.Equal(t, 1, sink.Len())
	assert.Equal(t, oplog.FieldValues{"manual_pdf": true, "image": true, "name": "Chair"}, sink.Records()[0].Payload)
}

func TestCascadeScope(t *testing.T) {
	s := capture.NewCascadeScope()
	assert.False(t, s.Accounted(4))
	s.MarkTemplate(4)
	s.MarkTemplate(2)
	assert.True(t, s.Accounted(4))
	assert.Equal(t, []int64{2, 4}, s.Templates())
}
