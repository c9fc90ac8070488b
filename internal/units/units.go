// Package units provides shared photometric and angular conversions.
// Catalogs store flux in linear instrumental units and sizes in arcseconds;
// these helpers are the single place the conversions live.
package units

import "math"

// DefaultMagZero is the survey magnitude zero point.
const DefaultMagZero = 30.0

// FWHMPerSigma converts a Gaussian sigma to its full width at half maximum,
// 2*sqrt(2*ln 2).
const FWHMPerSigma = 2.3548200450309493

// MagFromFlux converts a linear flux to a magnitude under the given zero
// point. Non-positive fluxes have no magnitude and map to +Inf.
func MagFromFlux(flux, magZero float64) float64 {
	if flux <= 0 {
		return math.Inf(1)
	}
	return magZero - 2.5*math.Log10(flux)
}

// FluxFromMag inverts MagFromFlux.
func FluxFromMag(mag, magZero float64) float64 {
	return math.Pow(10, 0.4*(magZero-mag))
}

// SigmaFromFWHM converts a seeing FWHM to the Gaussian sigma of the same
// profile.
func SigmaFromFWHM(fwhm float64) float64 { return fwhm / FWHMPerSigma }

// ArcsecToPixels converts an angular length to pixels at the given pixel
// scale in arcseconds per pixel.
func ArcsecToPixels(arcsec, scale float64) float64 { return arcsec / scale }
