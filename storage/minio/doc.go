// Package minio archives raw document uploads in a MinIO or S3 compatible
// bucket. Objects are keyed raw/{fingerprint}, so re-uploading identical
// bytes is a no-op.
package minio
