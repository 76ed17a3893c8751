package runtime

import "errors"

// ErrNotFound reports GetState/ApplyDeterministicCommand/InvokeRuntimeClosure
// against a key with no resident or cold entity.
var ErrNotFound = errors.New("runtime: entity not found")

// ErrBackPressure reports acquirePermit timing out, per spec.md
// 4.12/5's "acquire_inflight_permit returns an error after
// acquire_timeout_ms".
var ErrBackPressure = errors.New("runtime: in-flight operation permit not acquired before timeout")
