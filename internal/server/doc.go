// Package server exposes the push subsystem over local HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first). [Logging] and [Recover] are the
// two middlewares the CLI installs.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so a wrong method gets 405.
//
// # Gateway
//
// [Gateway] accepts data messages on POST /v1/messages, the same flat string map a push provider delivers, and
// feeds them to the notification dispatcher. It also accepts new tokens and reports token status, dispatch
// stats, the active performance profile and runtime health.
//
// # Login
//
// [LoginHandler] completes the PKCE authorization code flow used by `linapush token login` to obtain the
// bearer token the backend registration endpoint requires. It validates state, exchanges the code and
// delivers one [LoginResult] on a channel.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// [Serve] runs any handler until its context ends and then shuts down gracefully.
package server
