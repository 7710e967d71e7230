// Package storage provides the object storage abstraction behind the disk
// tier, with pluggable backends.
//
// # Backends
//
//   - storage/local: local filesystem
//   - storage/s3: Amazon S3 and S3-compatible storage
//
// A backend registers itself when its package is imported:
//
//	import _ "github.com/kbukum/tiered/storage/local"
//
//	st, err := storage.New(storage.Config{Provider: "local", BasePath: "/var/cache/tiered"}, nil, log)
//
// # Configuration
//
//	storage:
//	  provider: "s3"
//	  bucket: "tiered-cache"
//	  region: "eu-west-1"
package storage
