package moments

import "gonum.org/v1/gonum/dsp/fourier"

// fft2 computes the unnormalized 2D DFT of a real nx-by-ny image, rows then
// columns. The fourier.CmplxFFT scratch state is not safe for concurrent
// use, so each call builds its own transforms; setup cost is negligible
// next to the transform itself at stamp sizes.
func fft2(pix []float64, nx, ny int) []complex128 {
	a := make([]complex128, nx*ny)
	for i, v := range pix {
		a[i] = complex(v, 0)
	}

	rowFFT := fourier.NewCmplxFFT(nx)
	for y := 0; y < ny; y++ {
		row := a[y*nx : (y+1)*nx]
		rowFFT.Coefficients(row, row)
	}

	colFFT := fourier.NewCmplxFFT(ny)
	col := make([]complex128, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			col[y] = a[y*nx+x]
		}
		colFFT.Coefficients(col, col)
		for y := 0; y < ny; y++ {
			a[y*nx+x] = col[y]
		}
	}
	return a
}

// ifftshift moves the center pixel of a centered stamp to index (0, 0), so
// that the DFT of a centered object carries no linear phase. This is the
// inverse of the usual fftshift and the two differ for odd sizes.
func ifftshift(pix []float64, nx, ny int) []float64 {
	out := make([]float64, len(pix))
	shX := nx / 2
	shY := ny / 2
	for y := 0; y < ny; y++ {
		sy := (y + shY) % ny
		for x := 0; x < nx; x++ {
			sx := (x + shX) % nx
			out[y*nx+x] = pix[sy*nx+sx]
		}
	}
	return out
}
