// Package playlist resolves radio-directory playlist URLs (.pls, .m3u,
// .m3u8) to the stream URL they point at. Direct stream URLs pass through
// untouched.
package playlist
