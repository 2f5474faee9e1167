// Package plex turns the Plex DVR recording schedule into the power
// intervals the decision engine consumes.
//
// The flow is fetch, validate, guard, cache:
//
//   - Client fetches /media/subscriptions/scheduled with token auth.
//   - ParsePayload validates the response at the boundary; untyped data
//     never reaches the engine.
//   - Cache.Accept applies the staleness guard and persists the payload to
//     a file, so a restart (or a dead Plex) still has a schedule to run on.
//   - BuildInterval widens each entry's broadcast slot by the configured
//     lead/lag margins into a RecordingInterval with WakeAt/GraceOffAt.
//
// Entries the builder cannot place in time (no broadcast epochs) are
// dropped individually and never fail a whole payload.
package plex
