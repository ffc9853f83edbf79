// Package finalizer implements the finalize worker: it joins each item's
// OCR artifact with its download metadata into one consolidated record in
// 05_finalized, then retires the intermediate files.
package finalizer
