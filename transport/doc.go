// Package transport moves bundle files between machines: download over
// HTTP(S), push/pull to S3-compatible object storage and push/pull over SFTP.
//
// Downloads always go through atomicfile so a failed transfer never leaves
// a partial bundle at the destination path. Uploads to SFTP go to a temporary
// name and are renamed when complete. S3 objects are only visible after a
// successful upload.
package transport
