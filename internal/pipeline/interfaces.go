package pipeline

import (
	"context"
	"io"
)

// OperationHandle is the opaque name of an in-flight upstream operation.
type OperationHandle string

// Result points at the finished asset produced by the generation service.
type Result struct {
	URI      string
	MIMEType string
}

// Submission is what the generation service returns for a new request. Done
// is true when the service answered synchronously and Result is populated.
type Submission struct {
	Done   bool
	Handle OperationHandle
	Result *Result
}

// OperationStatus is one poll observation. Progress is nil when the service
// did not report an explicit percentage. Err carries an operation-level
// failure reported together with Done.
type OperationStatus struct {
	Done     bool
	Progress *int
	Result   *Result
	Err      error
}

// GenerationService is the slow external generator.
type GenerationService interface {
	Submit(ctx context.Context, req Request) (*Submission, error)
	Poll(ctx context.Context, handle OperationHandle) (*OperationStatus, error)
}

// OperationForgetter is implemented by generation services that keep state
// per in-flight operation. The poll stage calls Forget when it stops polling
// handle, whatever the reason.
type OperationForgetter interface {
	Forget(handle OperationHandle)
}

// AssetSource opens a streamed read of a finished asset. The returned size
// is -1 when the source does not know it up front.
type AssetSource interface {
	Open(ctx context.Context, uri, credential string) (io.ReadCloser, int64, error)
}

// Delivery is a single asset handed to a Deliverer.
type Delivery struct {
	Reader   io.Reader
	Size     int64
	Name     string
	Caption  string
	MIMEType string
}

// Deliverer uploads an asset to the user-facing channel.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// StatusRef identifies a previously posted status message.
type StatusRef int64

// StatusChannel posts and edits the single status line shown for a job.
type StatusChannel interface {
	Post(ctx context.Context, text string) (StatusRef, error)
	Edit(ctx context.Context, ref StatusRef, text string) error
}

// Observer receives a snapshot on every state transition. Observers are
// best-effort: their failures never affect the job.
type Observer interface {
	Observe(ctx context.Context, s Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, s Snapshot)

func (f ObserverFunc) Observe(ctx context.Context, s Snapshot) { f(ctx, s) }
