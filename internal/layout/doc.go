// Package layout maps the pipeline's directory structure. Location is
// state: every path helper here encodes a lifecycle position, and StageOf
// derives an item's stage purely from where its files sit.
package layout
