package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"prodlog/errors"
	"prodlog/logging"
	"prodlog/oplog"
	"prodlog/product"
)

// PayloadPolicy write 记录的载荷策略
type PayloadPolicy string

const (
	// PolicyValues 记录被修改字段的新值，二进制字段以 true 代替
	PolicyValues PayloadPolicy = "values"
	// PolicyNames 只记录被修改的字段名
	PolicyNames PayloadPolicy = "names"
)

// ParsePayloadPolicy 解析策略名，空串为 values
func ParsePayloadPolicy(name string) (PayloadPolicy, error) {
	switch PayloadPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyValues:
		return PolicyValues, nil
	case PolicyNames:
		return PolicyNames, nil
	default:
		return "", errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown payload policy %q", name))
	}
}

// DefaultBinaryFields 默认视为二进制的字段
var DefaultBinaryFields = []string{product.FieldImage}

// Recorder 把变更转换为操作记录并写入 Sink 的观察者
type Recorder struct {
	sink     oplog.Sink
	store    product.Store
	resolver *Resolver
	clock    *oplog.Clock
	policy   PayloadPolicy
	binary   map[string]bool
	logger   logging.Logger
}

// RecorderOption 记录器选项
type RecorderOption func(*Recorder)

// WithPayloadPolicy 设置 write 载荷策略
func WithPayloadPolicy(p PayloadPolicy) RecorderOption {
	return func(r *Recorder) { r.policy = p }
}

// WithBinaryFields 替换二进制字段集合
func WithBinaryFields(fields ...string) RecorderOption {
	return func(r *Recorder) {
		r.binary = make(map[string]bool, len(fields))
		for _, f := range fields {
			r.binary[f] = true
		}
	}
}

// WithClock 设置时间戳来源
func WithClock(c *oplog.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = c }
}

// WithResolver 共享解析器（与 StockAdapter 共用缓存）
func WithResolver(res *Resolver) RecorderOption {
	return func(r *Recorder) { r.resolver = res }
}

// WithRecorderLogger 设置日志器
func WithRecorderLogger(l logging.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder 创建记录器。store 必须是未经装饰的宿主存储，
// 删除前的"其余变体"查询与变体所属模板查询都直接访问它。
func NewRecorder(store product.Store, sink oplog.Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink:   sink,
		store:  store,
		policy: PolicyValues,
		logger: logging.ComponentLogger("capture.recorder"),
	}
	WithBinaryFields(DefaultBinaryFields...)(r)
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = NewResolver(store, 0)
	}
	if r.clock == nil {
		r.clock = oplog.NewClock()
	}
	return r
}

var _ Observer = (*Recorder)(nil)

// Resolver 返回记录器使用的解析器
func (r *Recorder) Resolver() *Resolver { return r.resolver }

// OnCreate 每个新行一条 create 记录，不带载荷
func (r *Recorder) OnCreate(ctx context.Context, kind product.Kind, row product.Row) error {
	key, err := r.resolver.Resolve(kind, row)
	if err != nil {
		return err
	}
	return r.emit(ctx, key, oplog.OpCreate, nil)
}

// OnWrite 每行一条 write 记录，载荷每次调用只构建一次
func (r *Recorder) OnWrite(ctx context.Context, kind product.Kind, rows []product.Row, values product.Values) error {
	if len(values) == 0 {
		return nil
	}
	payload := r.writePayload(values)
	for _, row := range rows {
		key, err := r.resolver.Resolve(kind, row)
		if err != nil {
			return err
		}
		if err := r.emit(ctx, key, oplog.OpWrite, payload); err != nil {
			return err
		}
	}
	return nil
}

type pendingUnlink struct {
	key      oplog.Key
	identity oplog.IdentitySnapshot
	variant  int64
}

// PrepareUnlink 删除前捕获每行的键与标识。
//
// 删除变体时先查询同模板下批次之外的其余变体：若没有，宿主将级联删除模板，
// 该模板在批次中的最后一行改记为模板删除并在作用域中标记。
// 已标记模板的删除（宿主级联）不再重复记录。
func (r *Recorder) PrepareUnlink(ctx context.Context, kind product.Kind, rows []product.Row, scope *CascadeScope) (UnlinkCommit, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	var (
		pending []pendingUnlink
		err     error
	)
	switch kind {
	case product.Template:
		pending, err = r.prepareTemplates(ctx, rows, scope)
	case product.Variant:
		pending, err = r.prepareVariants(ctx, rows, scope)
	default:
		err = errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown product kind %s", kind))
	}
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		for _, p := range pending {
			if err := r.emit(ctx, p.key, oplog.OpUnlink, p.identity); err != nil {
				return err
			}
			if p.variant != 0 {
				r.resolver.Forget(p.variant)
			}
		}
		return nil
	}, nil
}

func (r *Recorder) prepareTemplates(ctx context.Context, rows []product.Row, scope *CascadeScope) ([]pendingUnlink, error) {
	pending := make([]pendingUnlink, 0, len(rows))
	for _, row := range rows {
		if scope.Accounted(row.ID) {
			r.logger.Debug(ctx, "template unlink already recorded by its last variant", logging.Int64("template_id", row.ID))
			continue
		}
		key, err := r.resolver.Resolve(product.Template, row)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pendingUnlink{key: key, identity: identityOf(row)})
	}
	return pending, nil
}

func (r *Recorder) prepareVariants(ctx context.Context, rows []product.Row, scope *CascadeScope) ([]pendingUnlink, error) {
	batch := make([]int64, len(rows))
	for i, row := range rows {
		batch[i] = row.ID
	}

	// 每个模板只查询一次；lastIndex 记录该模板在批次中的最后一行
	survives := make(map[int64]bool)
	lastIndex := make(map[int64]int)
	for i, row := range rows {
		if row.TemplateID <= 0 {
			return nil, keyError(product.Variant, row, "variant has no template")
		}
		if _, done := survives[row.TemplateID]; !done {
			others, err := r.store.Search(ctx, product.Variant, product.Filter{
				TemplateID: row.TemplateID,
				ExcludeIDs: batch,
				Limit:      1,
			})
			if err != nil {
				return nil, err
			}
			survives[row.TemplateID] = len(others) > 0
		}
		lastIndex[row.TemplateID] = i
	}

	pending := make([]pendingUnlink, 0, len(rows))
	for i, row := range rows {
		key, err := r.resolver.Resolve(product.Variant, row)
		if err != nil {
			return nil, err
		}
		tid := row.TemplateID
		if !survives[tid] && lastIndex[tid] == i && !scope.Accounted(tid) {
			key = oplog.Key{ModelName: oplog.ModelTemplate, RecordID: tid, TemplateID: tid}
			scope.MarkTemplate(tid)
			r.logger.Debug(ctx, "last variant unlink recorded as template unlink",
				logging.Int64("variant_id", row.ID),
				logging.Int64("template_id", tid))
		}
		pending = append(pending, pendingUnlink{key: key, identity: identityOf(row), variant: row.ID})
	}
	return pending, nil
}

// RecordQuantity 为库存变化生成一条只含 qty_available 的 write 记录
func (r *Recorder) RecordQuantity(ctx context.Context, variantID int64, available decimal.Decimal) error {
	templateID, err := r.resolver.TemplateOf(ctx, variantID)
	if err != nil {
		return err
	}
	key := oplog.Key{ModelName: oplog.ModelVariant, RecordID: variantID, TemplateID: templateID}

	var payload oplog.Payload = oplog.FieldValues{product.FieldQtyAvailable: available}
	if r.policy == PolicyNames {
		payload = oplog.NewFieldNames(product.FieldQtyAvailable)
	}
	return r.emit(ctx, key, oplog.OpWrite, payload)
}

func (r *Recorder) writePayload(values product.Values) oplog.Payload {
	if r.policy == PolicyNames {
		return oplog.NewFieldNames(values.Fields()...)
	}
	out := make(oplog.FieldValues, len(values))
	for field, v := range values {
		if r.isBinary(field, v) {
			out[field] = true
			continue
		}
		out[field] = v
	}
	return out
}

func (r *Recorder) isBinary(field string, v any) bool {
	if r.binary[field] {
		return true
	}
	_, raw := v.([]byte)
	return raw
}

func (r *Recorder) emit(ctx context.Context, key oplog.Key, op oplog.OperationType, payload oplog.Payload) error {
	rec := oplog.Record{Key: key, OperationType: op, Payload: payload, Timestamp: r.clock.Now()}
	id, err := r.sink.Append(ctx, rec)
	if err != nil {
		return errors.WrapWithLog(ctx, err, errors.ErrCodeEmission, "emit operation record",
			logging.String("key", key.String()),
			logging.String("operation", string(op)))
	}
	r.logger.Debug(ctx, "operation record emitted",
		logging.Int64("id", id),
		logging.String("model", string(key.ModelName)),
		logging.Int64("record_id", key.RecordID),
		logging.Int64("template_id", key.TemplateID),
		logging.String("operation", string(op)))
	return nil
}

func identityOf(row product.Row) oplog.IdentitySnapshot {
	return oplog.IdentitySnapshot{
		SKU:         row.Text(product.FieldSKU),
		Barcode:     row.Text(product.FieldBarcode),
		DefaultCode: row.Text(product.FieldDefaultCode),
	}
}
