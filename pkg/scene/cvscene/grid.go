package cvscene

// occupancy returns the fraction of grid chunks whose foreground share
// exceeds threshold. mask holds one byte per pixel, non-zero meaning
// foreground. Edge chunks smaller than size are measured over their own
// area.
func occupancy(mask []byte, width, height, size int, threshold float64) float64 {
	if size <= 0 || width <= 0 || height <= 0 || len(mask) < width*height {
		return 0
	}

	var chunks, hot int
	for y0 := 0; y0 < height; y0 += size {
		y1 := min(y0+size, height)
		for x0 := 0; x0 < width; x0 += size {
			x1 := min(x0+size, width)

			fg := 0
			for y := y0; y < y1; y++ {
				row := mask[y*width+x0 : y*width+x1]
				for _, v := range row {
					if v != 0 {
						fg++
					}
				}
			}

			chunks++
			if float64(fg)/float64((x1-x0)*(y1-y0)) > threshold {
				hot++
			}
		}
	}
	return float64(hot) / float64(chunks)
}
