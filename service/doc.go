// Package service exposes the coordinator over HTTP.
//
// Five endpoints cover the whole participant lifecycle: authenticate,
// heartbeat, model, checkpoint and close. All of them are POSTs carrying
// JSON bodies; the session token issued by authenticate identifies the
// caller everywhere else. Backpressure is signalled with 429 responses,
// which participants answer by retrying after a pause.
package service
