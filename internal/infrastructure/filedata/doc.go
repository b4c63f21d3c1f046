// Package filedata stores image payloads for image point values.
//
// Each payload is written once to "<id>.<ext>" where id is the generated
// point value row id and ext is derived from the image type code. The
// store sits on an afero.Fs so tests can run against memory.
package filedata
