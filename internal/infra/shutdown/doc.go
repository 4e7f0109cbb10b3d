// Package shutdown coordinates graceful termination.
//
// A Handler waits for SIGINT, SIGTERM or cancellation of its parent
// context, then runs registered hooks in reverse registration order under
// a shared deadline.
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown("admin", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
