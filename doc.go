// Package transit provides transmission record keeping and outbound
// delivery queueing for document exchange networks.
//
// The service tracks every transmitted business document as a
// TransmissionRecord in a pluggable store (PostgreSQL, MySQL or in-memory),
// manages the outbound delivery queue as a small storage-backed state
// machine (QUEUED -> AOD | FAILED), reconciles documents sent to the
// system's own participants back into the inbound flow, and derives
// per-account traffic statistics.
//
// Basic usage:
//
//	st := sqldb.NewFromDB(db, sqldb.PostgresPlatform{})
//	svc, err := transit.NewService(
//		transit.WithStore(st),
//		transit.WithTransport(tr),
//	)
//	if err != nil { ... }
//	if err := svc.Connect(ctx); err != nil { ... }
//	defer svc.Close(ctx)
//
//	sub, err := svc.Submit(ctx, transit.SubmitRequest{ ... })
//	_, err = svc.DispatchQueued(ctx)
//
// Payload bytes and transport evidence are stored outside the metadata
// store through the blob subpackages (S3, GCS, in-memory, with an optional
// local file cache); records carry only opaque locations.
//
// Concurrency follows a no-application-locks design: all shared state lives
// in the store, which serializes access through atomic key generation,
// unique constraints and conditional updates. See the store package
// documentation.
package transit
