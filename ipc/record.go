package ipc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/framewrap/types"
)

// Record type discriminants.
const (
	RecordTypeFrame          = "frame"
	RecordTypeSetPayloadSize = "set_payload_size"
	RecordTypeSetCryptoKey   = "set_crypto_key"
	RecordTypeFrameError     = "frame_error"
)

// FrameRecord carries one media frame.
type FrameRecord struct {
	Type        string `msgpack:"type"`
	Version     string `msgpack:"record_version"`
	Kind        string `msgpack:"kind,omitempty"`
	Payload     []byte `msgpack:"payload"`
	Timestamp   uint32 `msgpack:"ts"`
	SSRC        uint32 `msgpack:"ssrc"`
	PayloadType uint8  `msgpack:"pt"`
}

// NewFrameRecord builds a record from f.
func NewFrameRecord(f *types.Frame) *FrameRecord {
	return &FrameRecord{
		Type:        RecordTypeFrame,
		Version:     types.RecordVersion,
		Kind:        string(f.Kind),
		Payload:     f.Payload,
		Timestamp:   f.Timestamp,
		SSRC:        f.SSRC,
		PayloadType: f.PayloadType,
	}
}

// ToFrame converts the record to a Frame.
// An absent kind stays unset and resolves to audio.
func (r *FrameRecord) ToFrame() (*types.Frame, error) {
	kind := types.MediaKind(r.Kind)
	if r.Kind != "" {
		parsed, err := types.ParseMediaKind(r.Kind)
		if err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "invalid frame record", Err: err}
		}
		kind = parsed
	}
	payload := r.Payload
	if payload == nil {
		payload = []byte{}
	}
	return &types.Frame{
		Kind:        kind,
		Payload:     payload,
		Timestamp:   r.Timestamp,
		SSRC:        r.SSRC,
		PayloadType: r.PayloadType,
	}, nil
}

// SetPayloadSizeRecord is the in-band form of types.SetPayloadSize.
type SetPayloadSizeRecord struct {
	Type      string `msgpack:"type"`
	MediaType string `msgpack:"media_type"`
	Value     int64  `msgpack:"value"`
}

// Command converts the record to a control command.
func (r *SetPayloadSizeRecord) Command() (types.Command, error) {
	kind, err := types.ParseMediaKind(r.MediaType)
	if err != nil {
		return nil, err
	}
	return types.SetPayloadSize{MediaType: kind, Value: r.Value}, nil
}

// SetCryptoKeyRecord is the in-band form of types.SetCryptoKey.
type SetCryptoKeyRecord struct {
	Type  string `msgpack:"type"`
	KeyID string `msgpack:"key_id"`
	Key   []byte `msgpack:"key"`
}

// Command converts the record to a control command.
func (r *SetCryptoKeyRecord) Command() (types.Command, error) {
	return types.SetCryptoKey{KeyID: r.KeyID, Key: r.Key}, nil
}

// FrameErrorRecord reports a frame that could not be transformed.
// The frame payload is not echoed back; only its identifying metadata.
type FrameErrorRecord struct {
	Type      string `msgpack:"type"`
	ErrorKind string `msgpack:"error_kind"`
	Message   string `msgpack:"message"`
	Kind      string `msgpack:"kind,omitempty"`
	Length    int    `msgpack:"len"`
	Timestamp uint32 `msgpack:"ts"`
	SSRC      uint32 `msgpack:"ssrc"`
}

// NewFrameErrorRecord builds an error record for frame f.
func NewFrameErrorRecord(kind types.ErrorKind, f *types.Frame, err error) *FrameErrorRecord {
	rec := &FrameErrorRecord{
		Type:      RecordTypeFrameError,
		ErrorKind: string(kind),
	}
	if err != nil {
		rec.Message = err.Error()
	}
	if f != nil {
		rec.Kind = string(f.Kind)
		rec.Length = len(f.Payload)
		rec.Timestamp = f.Timestamp
		rec.SSRC = f.SSRC
	}
	return rec
}

// controlRecord is implemented by records that carry a control command.
type controlRecord interface {
	Command() (types.Command, error)
}

// CommandRecord converts a control command into its record form.
func CommandRecord(cmd types.Command) (any, error) {
	switch c := cmd.(type) {
	case types.SetPayloadSize:
		return &SetPayloadSizeRecord{Type: RecordTypeSetPayloadSize, MediaType: string(c.MediaType.OrAudio()), Value: c.Value}, nil
	case *types.SetPayloadSize:
		return CommandRecord(*c)
	case types.SetCryptoKey:
		return &SetCryptoKeyRecord{Type: RecordTypeSetCryptoKey, KeyID: c.KeyID, Key: c.Key}, nil
	case *types.SetCryptoKey:
		return CommandRecord(*c)
	default:
		return nil, fmt.Errorf("no record form for command %T", cmd)
	}
}

// EncodeRecord marshals a record to msgpack without a length prefix.
func EncodeRecord(rec any) ([]byte, error) {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return payload, nil
}

// recordTypeProbe is used to peek at the type field without full decode.
type recordTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeRecord decodes a payload into one of *FrameRecord,
// *SetPayloadSizeRecord, *SetCryptoKeyRecord or *FrameErrorRecord,
// discriminated by the type field.
func DecodeRecord(payload []byte) (any, error) {
	var probe recordTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode record type",
			Err:  err,
		}
	}

	var rec any
	switch probe.Type {
	case RecordTypeFrame:
		rec = &FrameRecord{}
	case RecordTypeSetPayloadSize:
		rec = &SetPayloadSizeRecord{}
	case RecordTypeSetCryptoKey:
		rec = &SetCryptoKeyRecord{}
	case RecordTypeFrameError:
		rec = &FrameErrorRecord{}
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown record type %q", probe.Type),
		}
	}

	if err := msgpack.Unmarshal(payload, rec); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("failed to decode %s record", probe.Type),
			Err:  err,
		}
	}
	return rec, nil
}
