// Package archive implements the content-repository client consumed by the
// fetch worker. The pipeline only depends on the Client interface; the
// HTTP implementation targets an archive.org-style metadata/download API.
package archive
