// Package verificationengine implements the community-mapping Verification
// Engine.
//
// The module decides whether a submitted landmark or route is real by
// weighing community votes. Each vote is applied inside one entity
// transaction that upserts the voter's ledger entry, re-aggregates the
// time-decayed weights, classifies the entity and, on the first transition
// to verified, credits the submitter. Status changes leave the module as
// outbox-backed events; submissions enter it through the submission
// consumer.
package verificationengine
