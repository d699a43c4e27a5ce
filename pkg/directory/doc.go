// Package directory is the read-only view of platform users the notification
// pipeline needs: contact channels, role, activity and premium access.
//
// Directory is the collaborator interface. MemoryDirectory backs tests and
// local development; MongoDirectory reads the users collection.
package directory
