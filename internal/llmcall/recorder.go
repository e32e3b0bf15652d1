package llmcall

import (
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/store"
)

// Recorder records LLM calls asynchronously through a Sink, keeping the
// write off the pipeline stage's critical path.
type Recorder struct {
	sink *store.Sink
}

// NewRecorder creates a Recorder backed by sink.
func NewRecorder(sink *store.Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record captures a ChatResult asynchronously. Non-blocking: the write
// is queued and batched by the Sink.
func (r *Recorder) Record(result *llm.ChatResult, opts RecordOptions) {
	if r.sink == nil {
		return
	}

	call := FromChatResult(result, opts)
	if call == nil {
		return
	}
	r.sink.Send(store.WriteOp{
		Op:         store.OpCreate,
		Collection: model.CollectionLLMCall,
		Document:   call.ToMap(),
	})
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r.sink == nil || call == nil {
		return
	}

	r.sink.Send(store.WriteOp{
		Op:         store.OpCreate,
		Collection: model.CollectionLLMCall,
		Document:   call.ToMap(),
	})
}
