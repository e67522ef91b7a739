// Package invoke is the single crossing point between native callers and the
// foreign runtime.
//
// A Boundary performs the raw crossing and reports (status, bytes). The
// Dispatcher turns that into Go results:
//
//	StatusSuccess            -> result buffer
//	StatusError              -> *errors.Error, kind dispatch, payload attached
//	StatusUnexpectedFailure  -> *errors.Error, kind unexpected_failure
//
// The free call (method index 0) goes through Free, which never reports
// anything: failures and panics on that path are logged and swallowed.
//
// Calls block until the boundary returns. When the foreign runtime cannot take
// concurrent calls, configure the dispatcher with WithSerialized (or
// WithMaxConcurrent) instead of locking in callers.
package invoke
