// Package depth owns the per-frame depth data model.
//
// Responsibilities: the raw sensor Frame, decimation and threshold masking
// into a Reduced buffer for joint tracking, and the sparse RGB overlay that
// visualises which reduced cells survived the threshold window.
// Key types: Frame, Window, Reduced, RGBImage.
//
// Dependency rule: depth imports nothing else from this module. Tracking,
// rendering and the frame pump build on it.
package depth
