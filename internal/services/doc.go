// Package services talks to the push subsystem's external collaborators.
//
// # Backend Registration
//
// [BackendClient] posts a [RegistrationRequest] to the token registration endpoint and decodes the
// {success, segments} reply. A bearer token from config is attached through [oauth2.StaticTokenSource].
//
// # Push Platform
//
// [PushService] is the topic subscription contract. Two implementations exist:
//   - [NATSPushService] : topics map to NATS subjects under a configurable prefix; inbound JSON messages are handed to a [MessageHandler]
//   - [LocalPushService] : in-memory bookkeeping used when no broker is configured
//
// # Error Handling
//
// Services use sentinel errors from the shared package:
//   - [shared.ErrBackendRequest] : transport failure, non-2xx status or undecodable reply
//   - [shared.ErrBackendRejected] : the backend answered success=false
//   - [shared.ErrPushUnavailable] : broker connection or subscription failure
//   - [shared.ErrInvalidArgument] : topic names that cannot be mapped to a subject
package services
