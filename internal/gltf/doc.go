// Package gltf parses and validates the GLB binary container format.
//
// Only the container structure is inspected (header, version, chunk layout);
// the JSON scene payload itself is treated as opaque. Validation here is the
// structural gate used at pipeline entry and before publishing output.
package gltf
