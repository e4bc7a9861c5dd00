// Package crashline reports crashes and errors from a Go application to a
// remote collector, spooling reports on local storage while offline.
//
// # Core Components
//
//   - Client: builds, queues and delivers reports; never returns errors from its send methods
//   - Normalizer: strips wrapper errors (errors.Join, multi-%w) down to their causes
//   - Queue: bounded (10 entries) spool of serialized reports over a BlobStore
//   - Transport: single-attempt delivery; HTTPTransport posts JSON with the API key header
//   - Controller: attaches a Client to a Host's unhandled and unobserved-task error notifications
//
// # Quick Start
//
//	host := crashline.NewProcessHost()
//	ctrl := crashline.NewController(host)
//	client := ctrl.Attach(apiKey, crashline.WithStore(dir.New(spoolDir)))
//	defer client.Close()
//
//	host.Guard(ctx, func() {
//	    // code that might panic
//	})
//
// Reports are always written to the queue first. When the collector is
// reachable and the queue holds at most two entries, the queue is flushed in
// slot order right away; otherwise entries wait for the next flush. A failed
// delivery stops the flush and leaves the remaining entries in place.
//
// # Design Principles
//
//   - Best effort: a missing API key, a full disk or a dead network is logged, never raised
//   - Bounded: at most 10 queued reports, and a crashing process only drains a short queue
//   - No globals: the application owns its Controller and Client
package crashline
