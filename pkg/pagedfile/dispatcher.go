package pagedfile

// Request dispatch.
//
// Every File has one owner goroutine that exclusively holds the session.
// Callers talk to it through a buffered request channel; blocking operations
// carry a reply channel, writes do not. The channel's FIFO order is the
// ordering guarantee: requests are applied in arrival order, with one
// amortization - adjacent queued writes are applied as a single batch.

// opKind identifies a request type.
type opKind uint8

const (
	opRead opKind = iota + 1
	opWrite
	opSync
	opInfo
	opClose
)

// request is one operation handed to the owner goroutine.
//
// reply is nil exactly for opWrite: writes are fire-and-forget and have
// nothing to wait on. All other kinds get exactly one response.
type request struct {
	kind   opKind
	reads  []ReadRequest
	writes []WriteRequest
	reply  chan response
}

// response answers a blocking request.
type response struct {
	results []ReadResult
	info    Info
	err     error
}

// requestQueueDepth bounds the request channel. Writes beyond this block the
// caller until the owner catches up; the limit exists to bound memory, not
// as a tuning knob.
const requestQueueDepth = 128

// run is the owner loop. It exits after processing a close request.
func (f *File) run() {
	for {
		req := <-f.reqs
		if f.process(req) {
			return
		}
	}
}

// process applies one request against the session and answers it.
// Returns true once the File is closed and the loop should stop.
func (f *File) process(req *request) bool {
	switch req.kind {
	case opWrite:
		held := f.applyWrites(req.writes)
		if held != nil {
			return f.process(held)
		}

		return false

	case opRead:
		results := make([]ReadResult, len(req.reads))
		for i, r := range req.reads {
			results[i].Data, results[i].Err = f.sess.read(r.Offset, int64(r.Length))
		}

		req.reply <- response{results: results}

		return false

	case opSync:
		req.reply <- response{err: f.sess.sync()}

		return false

	case opInfo:
		req.reply <- response{info: f.sess.info()}

		return false

	case opClose:
		req.reply <- response{err: f.sess.close()}

		return true
	}

	return false
}

// applyWrites applies a write batch, first opportunistically draining every
// other write request already sitting in the queue into the same batch so a
// burst of small writes shares page loads.
//
// Draining is non-blocking and stops at the first queued non-write request,
// which is returned to the caller to be processed right after the batch.
// That keeps arrival order intact: everything drained arrived before the
// held request, and nothing that arrives later is touched.
func (f *File) applyWrites(writes []WriteRequest) *request {
	var held *request

drain:
	for {
		select {
		case next := <-f.reqs:
			if next.kind == opWrite {
				writes = append(writes, next.writes...)

				continue
			}

			held = next

			break drain
		default:
			break drain
		}
	}

	for _, w := range writes {
		f.sess.applyDeferred(w.Offset, w.Data)
	}

	return held
}
