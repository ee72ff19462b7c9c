// Package server provides the lifecycle controller of the embedded HTTP
// server.
//
// A Controller owns at most one running engine.Engine and moves between
// three states:
//
//	UNCONFIGURED --Configure--> STOPPED <--Start/Stop--> STARTED
//
// Start before the first Configure and Start while started are errors
// (ErrIllegalLifecycle). Stop is idempotent. Configure while started
// restarts the engine with the new configuration, which listeners observe
// as a stopped event followed by a started event.
//
// Handlers can only be registered while the server is started. A
// registration attempted in any other state is dropped and AddHandler
// returns an empty name; it is not replayed on the next start.
//
// Usage:
//
//	ctrl := server.NewController(engine.NewGinFactory(logger, engine.DefaultOptions()), root, logger)
//	_ = ctrl.AddListener(recorder)
//	_ = ctrl.AddEngineListener(rootHandler)
//	if err := ctrl.Configure(&cfg.Server); err != nil { ... }
//	if err := ctrl.Start(); err != nil { ... }
//	defer ctrl.Stop()
//
// Listeners are notified synchronously while the controller lock is held
// and must return quickly. Mutating calls made while listeners run, from a
// listener or from another goroutine, fail with ErrIllegalLifecycle (Stop
// logs and returns). The read-only IsStarted, State and Configuration do not
// take the lock and are safe to call from a listener.
//
// Listeners are kept as sets compared with ==, so they must be comparable,
// typically pointers. Engine event listeners added with AddEngineListener
// are attached to every engine before it starts; AddEventListener only
// reaches the engine currently running.
package server
