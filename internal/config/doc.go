// Package config loads run configuration files.
//
// A run file is JSON with optional fields. Omitted fields take the defaults
// returned by the Get* accessors, so a minimal file needs only a region and
// an export folder. RunFile.RunConfig turns a loaded file into the
// immutable pipeline.RunConfig.
package config
