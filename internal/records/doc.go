// Package records defines the JSON side-file schemas the pipeline uses as
// its only persistence: item metadata, batch metadata, completion metadata,
// error records, and the consolidated final record.
package records
