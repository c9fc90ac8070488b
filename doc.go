// Package anashear measures weak gravitational lensing shear from galaxy
// images analytically: no per-object fitting, no iterative minimization,
// and no pixel-level re-measurement to calibrate the response.
//
// The pipeline projects each PSF-deconvolved galaxy onto a truncated polar
// shapelet basis in Fourier space, forms an ellipticity from the moments,
// and differentiates the whole chain with respect to shear in closed form.
// Pixel-noise bias and selection bias are removed by analytic second-order
// corrections, and ensemble shear is recovered as a ratio of corrected
// sums over the catalog.
//
// The root package re-exports the handful of types a caller needs and a
// Measurer that wires them together; the internal packages hold the
// machinery (shapelet basis, moment extraction, covariance propagation,
// estimator algebra, exact aggregation).
package anashear
