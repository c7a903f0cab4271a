// Package frame encodes images into the ws3ds binary frame format.
//
// The device copies a received frame straight into its top-screen
// framebuffer, which is 400x240 pixels stored column-major, bottom-to-top,
// four bytes per pixel in A,B,G,R order. Encode performs that reordering
// from a row-major RGBA buffer; alpha is always written as 0xFF.
//
// Source images are first scaled to fit the screen with their aspect ratio
// preserved and centered on a transparent background (Fit).
package frame
