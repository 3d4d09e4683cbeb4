package types

// Operation is the tag of a control message.
type Operation string

// Control operations.
const (
	OperationSetPayloadSize Operation = "setPayloadSize"
	OperationSetCryptoKey   Operation = "setCryptoKey"
)

// Command is a control message applied to a pipeline out of band
// relative to frame flow.
type Command interface {
	Operation() Operation
}

// SetPayloadSize updates the padding size used for one media kind.
type SetPayloadSize struct {
	MediaType MediaKind
	Value     int64
}

// Operation implements Command.
func (SetPayloadSize) Operation() Operation { return OperationSetPayloadSize }

// SetCryptoKey carries keying material.
// It is accepted and counted but has no effect on the envelope.
type SetCryptoKey struct {
	KeyID string
	Key   []byte
}

// Operation implements Command.
func (SetCryptoKey) Operation() Operation { return OperationSetCryptoKey }

// PipelineMeta identifies a pipeline instance in logs, traces, and
// completion events.
type PipelineMeta struct {
	// PipelineID is unique per pipeline instance.
	PipelineID string
	// Direction is the fixed operation of the pipeline.
	Direction Direction
	// Peer is the remote address for network-attached pipelines.
	Peer *string
}
