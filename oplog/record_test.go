package oplog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodlog/errors"
)

var ts = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestRecord_Validate(t *testing.T) {
	valid := Record{
		Key:           Key{ModelName: ModelVariant, RecordID: 5, TemplateID: 2},
		OperationType: OpWrite,
		Payload:       NewFieldNames("barcode"),
		Timestamp:     ts,
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "product.product.write", valid.MessageType())

	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"未知模型", func(r *Record) { r.ModelName = "stock.quant" }},
		{"未知操作", func(r *Record) { r.OperationType = "merge" }},
		{"record_id 为 0", func(r *Record) { r.RecordID = 0 }},
		{"template_id 为 0", func(r *Record) { r.TemplateID = 0 }},
		{"模板记录 id 不一致", func(r *Record) { r.ModelName = ModelTemplate }},
		{"create 携带载荷", func(r *Record) { r.OperationType = OpCreate }},
		{"缺少时间戳", func(r *Record) { r.Timestamp = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestPayload_Envelope(t *testing.T) {
	t.Run("names", func(t *testing.T) {
		data, err := EncodePayload(NewFieldNames("name", "barcode"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1,"kind":"names","names":["barcode","name"]}`, string(data))

		p, err := DecodePayload(data)
		require.NoError(t, err)
		assert.Equal(t, FieldNames{"barcode", "name"}, p)
		assert.Equal(t, "barcode,name", p.(FieldNames).String())
	})

	t.Run("values 保留十进制精度", func(t *testing.T) {
		data, err := EncodePayload(FieldValues{"list_price": decimal.RequireFromString("10.10"), "image": true})
		require.NoError(t, err)

		p, err := DecodePayload(data)
		require.NoError(t, err)
		vals := p.(FieldValues)
		assert.Equal(t, true, vals["image"])
		assert.Equal(t, "10.1", vals["list_price"])
		assert.Equal(t, FieldNames{"image", "list_price"}, vals.Names())
	})

	t.Run("values 数字为 json.Number", func(t *testing.T) {
		p, err := DecodePayload([]byte(`{"v":1,"kind":"values","values":{"qty_available":12345678901234567}}`))
		require.NoError(t, err)
		assert.Equal(t, json.Number("12345678901234567"), p.(FieldValues)["qty_available"])
	})

	t.Run("identity", func(t *testing.T) {
		data, err := EncodePayload(IdentitySnapshot{Barcode: "400", DefaultCode: "D-1"})
		require.NoError(t, err)
		p, err := DecodePayload(data)
		require.NoError(t, err)
		assert.Equal(t, IdentitySnapshot{Barcode: "400", DefaultCode: "D-1"}, p)
		assert.Equal(t, KindIdentity, p.Kind())
	})

	t.Run("nil", func(t *testing.T) {
		data, err := EncodePayload(nil)
		require.NoError(t, err)
		assert.Nil(t, data)
		p, err := DecodePayload(nil)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("拒绝未知版本与种类", func(t *testing.T) {
		_, err := DecodePayload([]byte(`{"v":2,"kind":"names"}`))
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodePayload))
		_, err = DecodePayload([]byte(`{"v":1,"kind":"pickle"}`))
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodePayload))
		_, err = DecodePayload([]byte(`not json`))
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodePayload))
	})
}

func TestClock_NonDecreasing(t *testing.T) {
	times := []time.Time{
		ts.Add(2 * time.Second),
		ts,
		ts.Add(3*time.Second + 1500*time.Nanosecond),
	}
	i := 0
	c := NewClockFunc(func() time.Time { t := times[i]; i++; return t.In(time.FixedZone("X", 3600)) })

	first := c.Now()
	second := c.Now()
	third := c.Now()
	assert.Equal(t, time.UTC, first.Location())
	assert.Equal(t, first, second, "回拨时沿用上次时间")
	assert.Equal(t, ts.Add(3*time.Second+time.Microsecond), third)
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	rec := Record{Key: Key{ModelName: ModelTemplate, RecordID: 3, TemplateID: 3}, OperationType: OpCreate, Timestamp: ts}

	id, err := sink.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = sink.Append(context.Background(), Record{})
	assert.Error(t, err)

	assert.Equal(t, 1, sink.Len())
	assert.Len(t, sink.ByTemplate(3), 1)
	assert.Empty(t, sink.ByTemplate(4))
	sink.Reset()
	assert.Zero(t, sink.Len())
	id, err = sink.Append(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "Reset 后 id 重新计数")
}
